// Package credentials loads and validates the service-account bundle used to
// authenticate against Firebase.
//
// The bundle can come from environment variables (the default), a JSON key
// file, a HashiCorp Vault KV v2 secret or an object in S3, selected with a
// location URI through SourceFor:
//
//	src, err := credentials.SourceFor("vault://vault.internal:8200/secret/push-relay/firebase", logger)
//	sa, err := credentials.Load(ctx, src)
//
// Private keys stored in flat configuration systems usually carry literal
// "\n" sequences instead of newlines. Every source normalizes the key before
// it is validated, so authentication does not fail on an escaping artifact.
// Validation failures are reported as *interfaces.ConfigurationError.
package credentials
