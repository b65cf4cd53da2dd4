// Package services defines the shared error taxonomy used by the control
// loops and external clients: sentinel markers for transient, validation,
// configuration, and external-tool failures.
package services
