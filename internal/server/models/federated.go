package models

// FederatedProfile is what the external identity provider tells us about the
// person who just authenticated. Only ProviderID is guaranteed.
type FederatedProfile struct {
	ProviderID  string
	DisplayName string
	Email       string
	PhotoURL    string
}
