// Package environment names the deployment environments (development,
// staging, production) and normalizes the short forms operators type into
// APP_ENV.
package environment
