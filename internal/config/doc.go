// Package config provides configuration management for authflow.
//
// Configuration is read from config.yaml in a single directory. The default
// directory is ~/.config/authflow; commands accept --config-path to point
// elsewhere. Keys missing from the file keep their defaults, and a missing
// file yields the defaults.
//
// # Example
//
//	issuer: https://accounts.google.com
//	clientID: 1234.apps.googleusercontent.com
//	redirectURI: http://127.0.0.1:8085/callback
//	scopes:
//	  - https://www.googleapis.com/auth/drive.file
//	callbackTimeout: 5m
//	storage:
//	  driver: file
//	  dir: /home/me/.config/authflow/credentials
//	logLevel: info
//
// The client secret of installed-app clients may also be supplied through
// the AUTHFLOW_CLIENT_SECRET environment variable.
package config
