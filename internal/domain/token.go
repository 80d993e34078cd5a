package domain

// Token is the validated inbound credential attached to an activity.
type Token interface {
	AppID() string
	AppDisplayName() string
	TenantID() string
	ServiceURL() string
	Expired() bool
	String() string
}
