// Package waf holds the catalogue of payloads used by the WAF egress probe.
//
// The catalogue is opaque data: each entry is a name and a payload string that
// a web application firewall is expected to recognise. The server only returns
// payloads on request so clients can check whether the WAF blocks them on the
// way out.
//
// Default() loads the catalogue embedded in the binary. Load(path) reads an
// external YAML file of the same shape:
//
//	payloads:
//	  - name: sqli-tautology
//	    category: sqli
//	    payload: "' OR '1'='1"
//
// Catalogue.Watch reloads an external file when it changes; a reload that
// fails to parse is logged and the previous entries stay active.
package waf
