package keys

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sort"
)

// JWK is one entry of the published key set.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS renders every known public key as an RFC 7517 key set so relying
// parties can verify bearer tokens without calling this service per request.
func (m *Manager) JWKS() ([]byte, error) {
	public := m.PublicKeys()
	kids := make([]string, 0, len(public))
	for kid := range public {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	doc := struct {
		Keys []JWK `json:"keys"`
	}{Keys: make([]JWK, 0, len(kids))}

	for _, kid := range kids {
		pub := public[kid]
		doc.Keys = append(doc.Keys, JWK{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return json.Marshal(doc)
}
