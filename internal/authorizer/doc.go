// Package authorizer manages the OAuth 2.0 authorization code flow of a
// command line application and the credential it produces.
//
// The Coordinator is the single owner of the authorization state. It
// discovers the issuer's endpoints, launches an ExternalAgent (by default the
// system browser) with a freshly built request, and waits for the redirect to
// come back through ContinueWith. The RedirectServer is the loopback listener
// delivering those redirects.
//
// # Flow
//
//	IDLE --Authorize--> DISCOVERING --> REQUESTING --> PENDING
//	DISCOVERING --failure--> IDLE (credential cleared)
//	PENDING --ContinueWith(matching)--> IDLE (credential set or cleared)
//	PENDING --ContinueWith(other URL)--> PENDING
//	PENDING --agent reports--> IDLE
//
// Only one flow is pending at a time; a second Authorize replaces it.
//
// # Persistence
//
// Every change of the in-memory credential is mirrored to a CredentialStore
// under a fixed name. FileCredentialStore writes one 0600 JSON file per name
// in an 0700 directory. A CredentialWatcher reloads the credential when
// another process changes the file.
//
// # Consuming the credential
//
// TokenSource and HTTPClient hand the credential to downstream code; refreshed
// tokens are written back through the coordinator.
package authorizer
