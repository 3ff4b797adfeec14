package constants

// Frontend pages this service redirects prospects to. They are served by the
// web frontend, not by this binary.
const (
	TrialPageRoute       = "/trial"
	PurchaseSuccessRoute = "/purchase/success"
	// AuthRoute prefixes the social login begin and callback handlers.
	AuthRoute = "/auth"
)
