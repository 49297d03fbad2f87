// Package siteurl resolves the public origin used in absolute links such
// as sitemap entries.
package siteurl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

const DefaultProductionURL = "https://devint.cl"

type Source string

const (
	SourceOverride    Source = "override"
	SourceSSM         Source = "ssm"
	SourceDefault     Source = "default"
	SourceDevelopment Source = "development"
)

// ParameterGetter is the subset of *ssm.Client used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Options struct {
	Logger     log.Logger
	Production bool

	// Override wins over everything in production
	Override string

	// SSMParam is read through SSM when set and Override is empty
	SSMParam string
	SSM      ParameterGetter

	// Port builds the development origin http://localhost:<port>
	Port int
}

type Resolution struct {
	URL    string
	Source Source
}

// Resolve picks the site origin. In production the precedence is
// Override, then the SSM parameter, then DefaultProductionURL; an SSM
// failure is logged and falls through to the default. An invalid
// Override is an error. The result never ends in a slash.
func Resolve(ctx context.Context, opts Options) (Resolution, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	if !opts.Production {
		port := opts.Port
		if port == 0 {
			port = 8080
		}
		return Resolution{URL: fmt.Sprintf("http://localhost:%d", port), Source: SourceDevelopment}, nil
	}

	if opts.Override != "" {
		u, err := Normalize(opts.Override)
		if err != nil {
			return Resolution{}, xerrors.Wrap(err, "siteurl: override")
		}
		return Resolution{URL: u, Source: SourceOverride}, nil
	}

	if opts.SSMParam != "" && opts.SSM != nil {
		u, err := fromSSM(ctx, opts.SSM, opts.SSMParam)
		if err == nil {
			return Resolution{URL: u, Source: SourceSSM}, nil
		}
		opts.Logger.Warn(ctx, "site url ssm lookup failed, using default",
			"param", opts.SSMParam,
			"default", DefaultProductionURL,
			"err", err,
		)
	}

	return Resolution{URL: DefaultProductionURL, Source: SourceDefault}, nil
}

func fromSSM(ctx context.Context, client ParameterGetter, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	return Normalize(*out.Parameter.Value)
}

// Normalize checks that raw is an absolute http(s) URL and trims
// surrounding space and trailing slashes.
func Normalize(raw string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", xerrors.New("site url is empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", xerrors.Wrapf(err, "parse site url %q", s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", xerrors.Newf("site url %q must use http or https", s)
	}
	if u.Host == "" {
		return "", xerrors.Newf("site url %q has no host", s)
	}
	return s, nil
}
