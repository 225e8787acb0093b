package models

// ClaimSet holds the namespaced claims for the identity token and the access token.
type ClaimSet struct {
	Namespace   string                 `json:"namespace"`
	IDToken     map[string]interface{} `json:"id_token"`
	AccessToken map[string]interface{} `json:"access_token"`
}

// NewClaimSet returns an empty claim set under namespace.
func NewClaimSet(namespace string) *ClaimSet {
	return &ClaimSet{
		Namespace:   namespace,
		IDToken:     map[string]interface{}{},
		AccessToken: map[string]interface{}{},
	}
}

// Key returns the namespaced form of a claim name.
func (c *ClaimSet) Key(name string) string {
	return c.Namespace + name
}

// AccessClaim returns the access-token claim stored under name.
func (c *ClaimSet) AccessClaim(name string) (interface{}, bool) {
	v, ok := c.AccessToken[c.Key(name)]
	return v, ok
}

// IDClaim returns the identity-token claim stored under name.
func (c *ClaimSet) IDClaim(name string) (interface{}, bool) {
	v, ok := c.IDToken[c.Key(name)]
	return v, ok
}
