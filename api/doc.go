/*
Package api defines the wire types and server configuration of the push relay.

The relay exposes two endpoints:

  - POST /api/login stores a device token under a client identifier
  - POST /api/sendNotification sends one message to every stored token

Both answer with the Response envelope:

	{"success": true, "message": "Token registered successfully."}

A broadcast additionally reports successCount and failureCount. Delivery
failures of individual recipients never fail the request; they are counted
and logged.

See the pushhandler subpackage for the handlers and a client.
*/
package api
