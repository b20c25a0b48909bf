// Package main (cmd/pushctl) is a command line client for the push relay.
//
// Commands:
//
//   - register --phone --token: store a device token through the relay
//   - broadcast [--message]: send a notification to every registered device
//   - check-credentials: load and validate the service account locally
//   - list: print stored registrations with shortened tokens
//
// Example usage:
//
//	pushctl register --relay-addr=http://localhost:8080 --phone=+15550001 --token=...
//	pushctl check-credentials --credentials=vault://vault:8200/secret/push-relay/firebase
package main
