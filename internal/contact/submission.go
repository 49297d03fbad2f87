package contact

import (
	"strings"
	"time"

	"github.com/devint-cl/devint-web/internal/validate"
)

const (
	maxNombre  = 120
	maxEmpresa = 120
	maxEmail   = 254
	maxMensaje = 5000
)

// Request is the JSON body posted by the contact form.
type Request struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Mensaje  string `json:"mensaje"`
	Telefono string `json:"telefono,omitempty"`
	Empresa  string `json:"empresa,omitempty"`
	RUT      string `json:"rut,omitempty"`
}

type Submission struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	ClientID   string    `json:"client_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Request
}

func (r *Request) missingRequired() bool {
	return strings.TrimSpace(r.Email) == "" ||
		strings.TrimSpace(r.Nombre) == "" ||
		strings.TrimSpace(r.Mensaje) == ""
}

// sanitize cleans every field in place. Phone and RUT keep their
// formatting so validation messages refer to what the visitor typed.
func (r *Request) sanitize() {
	r.Nombre = validate.Sanitize(r.Nombre)
	r.Empresa = validate.Sanitize(r.Empresa)
	r.Email = strings.TrimSpace(r.Email)
	r.Mensaje = validate.SanitizeText(r.Mensaje)
	r.Telefono = strings.TrimSpace(r.Telefono)
	r.RUT = strings.TrimSpace(r.RUT)
}

// fieldErrors returns field -> messages for every invalid field, or nil.
func (r *Request) fieldErrors() map[string][]string {
	results := validate.Form(map[string]string{
		"nombre":  r.Nombre,
		"empresa": r.Empresa,
		"mensaje": r.Mensaje,
	}, map[string]validate.Rule{
		"nombre":  {Required: true, MaxLength: maxNombre},
		"empresa": {MaxLength: maxEmpresa},
		"mensaje": {Required: true, MaxLength: maxMensaje},
	})

	email := validate.Email(r.Email)
	if email.Valid && len(r.Email) > maxEmail {
		email = validate.Result{Errors: []string{validate.MsgEmail}}
	}
	results["email"] = email
	results["telefono"] = validate.Phone(r.Telefono)
	if r.RUT != "" {
		results["rut"] = validate.RUT(r.RUT)
	}

	if !validate.HasErrors(results) {
		return nil
	}
	return validate.Errors(results)
}
