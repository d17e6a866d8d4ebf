// Package page renders the diagnostic landing page served at "/".
package page
