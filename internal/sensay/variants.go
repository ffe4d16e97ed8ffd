package sensay

type authScheme int

const (
	authOrganizationSecret authScheme = iota
	authBearer
)

type payloadShape int

const (
	payloadMessages payloadShape = iota
	payloadLastContent
)

// Variant is one candidate combination of endpoint path, authentication
// header convention, and payload shape tried against the replica API.
type Variant struct {
	Label   string
	Path    string
	Auth    authScheme
	Payload payloadShape
}

// defaultVariants is the fixed, ordered fallback table. The exact convention
// the deployed replica API honors is not known ahead of time, so each request
// walks this list top to bottom until one variant succeeds. Every variant is
// tried at most once per request and the winner is never cached.
func defaultVariants() []Variant {
	return []Variant{
		{
			Label:   "chat-completions/org-secret",
			Path:    "/v1/replicas/{replica}/chat/completions",
			Auth:    authOrganizationSecret,
			Payload: payloadMessages,
		},
		{
			Label:   "experimental-completions/org-secret",
			Path:    "/v1/experimental/replicas/{replica}/chat/completions",
			Auth:    authOrganizationSecret,
			Payload: payloadMessages,
		},
		{
			Label:   "chat-completions/bearer",
			Path:    "/v1/replicas/{replica}/chat/completions",
			Auth:    authBearer,
			Payload: payloadMessages,
		},
		{
			Label:   "experimental-completions/minimal",
			Path:    "/v1/experimental/replicas/{replica}/chat/completions",
			Auth:    authOrganizationSecret,
			Payload: payloadLastContent,
		},
	}
}
