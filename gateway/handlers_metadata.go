package gateway

import "net/http"

type metadataResponse struct {
	ServerVersion          string   `json:"serverVersion"`
	IAMDiscoveryURL        string   `json:"iamDiscoveryUrl"`
	SupportedResourceTypes []string `json:"supportedResourceTypes"`
}

// handleMetadata is unauthenticated and used by the mobile client to
// bootstrap, per spec.md §4.2 Metadata endpoint.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, metadataResponse{
		ServerVersion:          ServerVersion,
		IAMDiscoveryURL:        s.iamDiscoveryURL,
		SupportedResourceTypes: []string{"Observation"},
	})
}
