package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ModelRefKind tags a model reference as a local model or a remote API endpoint.
type ModelRefKind string

// APIProvider identifies the family of a remote evaluation API.
type APIProvider string

const (
	// ModelRefLocal is a model resolved by path or name on the evaluation host.
	ModelRefLocal ModelRefKind = "local"
	// ModelRefAPI is a model reached over HTTP(S).
	ModelRefAPI ModelRefKind = "api"

	ProviderGemini   APIProvider = "gemini"
	ProviderDeepSeek APIProvider = "deepseek"
	ProviderOpenAI   APIProvider = "openai"
	ProviderCustom   APIProvider = "custom"
)

// registrable domains of known providers.
var providerDomains = map[string]APIProvider{
	"googleapis.com":   ProviderGemini,
	"google.com":       ProviderGemini,
	"deepseek.com":     ProviderDeepSeek,
	"openai.com":       ProviderOpenAI,
	"openai.azure.com": ProviderOpenAI,
}

// ModelRef is a tagged model reference. Kind is decided once by ParseModelRef.
type ModelRef struct {
	Kind     ModelRefKind `json:"kind"`
	Ref      string       `json:"ref"`
	Provider APIProvider  `json:"provider,omitempty"`
}

// ParseModelRef classifies raw as an API ref (http:// or https:// URL with a host) or a local ref.
func ParseModelRef(raw string) (ModelRef, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return ModelRef{}, errors.New("model ref is empty")
	}

	lower := strings.ToLower(ref)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ModelRef{Kind: ModelRefLocal, Ref: ref}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ModelRef{}, fmt.Errorf("parse api model ref %q: %w", ref, err)
	}
	if u.Hostname() == "" {
		return ModelRef{}, fmt.Errorf("api model ref %q has no host", ref)
	}

	return ModelRef{Kind: ModelRefAPI, Ref: ref, Provider: DetectProvider(u)}, nil
}

// MustParseModelRef is ParseModelRef for literals known to be valid.
func MustParseModelRef(raw string) ModelRef {
	ref, err := ParseModelRef(raw)
	if err != nil {
		//nolint:forbidigo // Must helper is only used with static inputs
		panic(err)
	}
	return ref
}

// DetectProvider resolves the API family from the endpoint's registrable domain,
// falling back to keywords in the full URL.
func DetectProvider(u *url.URL) APIProvider {
	host := strings.ToLower(u.Hostname())
	if p, ok := providerDomains[host]; ok {
		return p
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if p, ok := providerDomains[etld1]; ok {
			return p
		}
	}

	s := strings.ToLower(u.String())
	switch {
	case strings.Contains(s, "gemini") || strings.Contains(s, "google"):
		return ProviderGemini
	case strings.Contains(s, "deepseek"):
		return ProviderDeepSeek
	case strings.Contains(s, "openai") || strings.Contains(s, "gpt"):
		return ProviderOpenAI
	default:
		return ProviderCustom
	}
}

// IsAPI reports whether the ref targets a remote API.
func (r ModelRef) IsAPI() bool { return r.Kind == ModelRefAPI }

// ModelType is the label used for per-type report breakdowns.
func (r ModelRef) ModelType() string {
	if r.IsAPI() {
		return string(ModelRefAPI)
	}
	return string(ModelRefLocal)
}

func (r ModelRef) String() string { return r.Ref }
