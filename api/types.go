package api

// RegisterRequest is the body of POST /api/login.
type RegisterRequest struct {
	// Phone is the client identifier the token is stored under.
	Phone string `json:"phone"`

	// PhoneNumber is accepted from older clients when Phone is empty.
	PhoneNumber string `json:"phoneNumber,omitempty"`

	// Token is the device token issued by the messaging client SDK.
	Token string `json:"token"`
}

// ClientKey returns the identifier to register, preferring Phone.
func (r RegisterRequest) ClientKey() string {
	if r.Phone != "" {
		return r.Phone
	}
	return r.PhoneNumber
}

// BroadcastRequest is the body of POST /api/sendNotification. An empty body
// sends the default message.
type BroadcastRequest struct {
	Message string `json:"message,omitempty"`
}

// Response is the JSON envelope of every relay endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Details carries the underlying error of a failed request.
	Details string `json:"details,omitempty"`

	// SuccessCount and FailureCount are only set by a broadcast that reached
	// the push gateway.
	SuccessCount *int `json:"successCount,omitempty"`
	FailureCount *int `json:"failureCount,omitempty"`
}
