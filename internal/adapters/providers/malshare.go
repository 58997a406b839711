package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"threatlens/internal/domain"
)

const (
	MalShareID          = "malshare"
	DefaultMalShareBase = "https://malshare.com/api.php"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]+$`)

var hashTypes = map[int]string{32: "md5", 40: "sha1", 64: "sha256"}

// MalShare checks file hashes against the MalShare corpus. Presence means
// malware.
type MalShare struct {
	remote
	baseURL string
	apiKey  string
}

func NewMalShare(apiKey, baseURL string, opts HTTPOptions) *MalShare {
	if baseURL == "" {
		baseURL = DefaultMalShareBase
	}
	return &MalShare{remote: newRemote(MalShareID, opts), baseURL: baseURL, apiKey: apiKey}
}

func (p *MalShare) ID() string                             { return MalShareID }
func (p *MalShare) SignalType() domain.SignalType          { return domain.SignalHashLookup }
func (p *MalShare) Applicable(t domain.IndicatorType) bool { return t == domain.TypeHash }

type malShareDetails struct {
	MD5    string `json:"MD5"`
	SHA1   string `json:"SHA1"`
	SHA256 string `json:"SHA256"`
	FType  string `json:"F_TYPE"`
	Source any    `json:"SOURCE"`
	Added  any    `json:"ADDED"`
}

func (p *MalShare) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(p.id, t)
	}
	hashType, ok := hashTypes[len(value)]
	if !ok || !hexDigest.MatchString(value) {
		return domain.Signal{}, domain.NewPermanentError(p.id, domain.ErrorKindInvalidInput, fmt.Errorf("invalid hash format: %q", value))
	}

	q := url.Values{}
	q.Set("api_key", p.apiKey)
	q.Set("action", "details")
	q.Set("hash", value)

	resp, err := p.get(ctx, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Signal{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.Signal{
			Score: 0,
			Detail: map[string]any{
				"hash":      value,
				"hash_type": hashType,
				"found":     false,
				"message":   "Hash not found in MalShare database",
			},
		}, nil
	case http.StatusOK:
	default:
		return domain.Signal{}, p.statusError(resp)
	}

	var d malShareDetails
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return domain.Signal{}, domain.NewTransientError(p.id, domain.ErrorKindUpstream, fmt.Errorf("decode response: %w", err))
	}
	detail := map[string]any{
		"hash":       value,
		"hash_type":  hashType,
		"found":      true,
		"is_malware": true,
		"md5":        d.MD5,
		"sha1":       d.SHA1,
		"sha256":     d.SHA256,
		"file_type":  d.FType,
	}
	if d.Source != nil {
		detail["source"] = d.Source
	}
	if d.Added != nil {
		detail["added_date"] = d.Added
	}
	return domain.Signal{Score: 9.0, Detail: detail}, nil
}
