// Package contact implements POST /api/contact.
//
// A submission is checked for the required fields (nombre, email,
// mensaje), validated, stamped with an id and receive time, and handed to
// a [Sink]. Response messages are Spanish and match what the site's form
// script displays.
package contact
