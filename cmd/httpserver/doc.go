// Package main (cmd/httpserver) runs the push relay server.
//
// The server exposes POST /api/login to store a device token under a phone
// number and POST /api/sendNotification to send one notification to every
// stored token through Firebase Cloud Messaging.
//
// The Firebase service account is read once at startup from the source given
// by --credentials (FIREBASE_* environment variables by default, optionally
// populated from a .env file). If it is missing or malformed the server keeps
// running, reports not ready on /readyz and answers relay requests with 503.
//
// Registrations are stored in the Firestore collection "tokens" unless
// --store selects another location. Several --store flags mirror writes.
//
// Example usage:
//
//	push-relay --listen-addr=0.0.0.0:8080 \
//	    --credentials=file:///etc/push-relay/service-account.json \
//	    --store=firestore://tokens \
//	    --prune-invalid-tokens
//
// Example usage with a local Redis store and FCM dry-run:
//
//	push-relay --store=redis://localhost:6379/0 --dry-run --log-debug
package main
