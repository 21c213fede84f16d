package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"nullbr-search-service/internal/model"
	"nullbr-search-service/pkg/httpclient"

	"github.com/rs/zerolog/log"
)

// NullbrService handles nullbr API interactions
type NullbrService struct {
	client  *httpclient.Client
	baseURL string
	appID   string
	apiKey  string
}

// NewNullbrService creates a new NullbrService. apiKey may be empty, in which
// case only search is available.
func NewNullbrService(client *httpclient.Client, baseURL, appID, apiKey string) *NullbrService {
	return &NullbrService{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		apiKey:  apiKey,
	}
}

// HasAPIKey reports whether resource links can be requested
func (s *NullbrService) HasAPIKey() bool {
	return s.apiKey != ""
}

// nullbrSearchResponse is the search API response
type nullbrSearchResponse struct {
	Items        []nullbrItem `json:"items"`
	Page         int          `json:"page"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
}

// nullbrItem is one search API result
type nullbrItem struct {
	Title        string     `json:"title"`
	MediaType    string     `json:"media_type"`
	TMDBID       flexString `json:"tmdbid"`
	ReleaseDate  string     `json:"release_date"`
	FirstAirDate string     `json:"first_air_date"`
	Overview     string     `json:"overview"`
	Flag115      flexBool   `json:"115-flg"`
	FlagMagnet   flexBool   `json:"magnet-flg"`
	FlagVideo    flexBool   `json:"video-flg"`
	FlagEd2k     flexBool   `json:"ed2k-flg"`
}

func (it nullbrItem) toHit() model.SearchHit {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = "未知标题"
	}

	date := it.ReleaseDate
	if date == "" {
		date = it.FirstAirDate
	}
	if len(date) > 4 {
		date = date[:4]
	}

	return model.SearchHit{
		Title:     title,
		MediaType: model.MediaType(it.MediaType),
		TMDBID:    string(it.TMDBID),
		Year:      date,
		Overview:  strings.TrimSpace(it.Overview),
		Resources: map[model.ResourceType]bool{
			model.Resource115:    bool(it.Flag115),
			model.ResourceMagnet: bool(it.FlagMagnet),
			model.ResourceVideo:  bool(it.FlagVideo),
			model.ResourceEd2k:   bool(it.FlagEd2k),
		},
	}
}

// nullbrRecord is one entry of a resource lookup
type nullbrRecord struct {
	Title      flexString `json:"title"`
	Name       flexString `json:"name"`
	Size       flexString `json:"size"`
	ShareLink  string     `json:"share_link"`
	Magnet     string     `json:"magnet"`
	URL        string     `json:"url"`
	Link       string     `json:"link"`
	Resolution flexString `json:"resolution"`
	ZhSub      flexBool   `json:"zh_sub"`
}

func (r nullbrRecord) toRecord() model.ResourceRecord {
	return model.ResourceRecord{
		Title:      strings.TrimSpace(string(r.Title)),
		Name:       strings.TrimSpace(string(r.Name)),
		Size:       strings.TrimSpace(string(r.Size)),
		ShareLink:  strings.TrimSpace(r.ShareLink),
		Magnet:     strings.TrimSpace(r.Magnet),
		URL:        strings.TrimSpace(r.URL),
		Link:       strings.TrimSpace(r.Link),
		Resolution: strings.TrimSpace(string(r.Resolution)),
		ZhSub:      bool(r.ZhSub),
	}
}

func (s *NullbrService) headers() http.Header {
	h := http.Header{}
	h.Set("X-APP-ID", s.appID)
	if s.apiKey != "" {
		h.Set("X-API-KEY", s.apiKey)
	}
	return h
}

func (s *NullbrService) get(ctx context.Context, path string, params url.Values) (*httpclient.Response, error) {
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    s.baseURL + path,
		Params: params,
		Header: s.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, nil
}

// Search searches titles by keyword. Zero results is a successful empty page.
func (s *NullbrService) Search(ctx context.Context, query string, page int) (*model.SearchPage, error) {
	if page < 1 {
		page = 1
	}

	log.Info().Str("query", query).Int("page", page).Msg("🔍 搜索 Nullbr")

	resp, err := s.get(ctx, "/search", url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: search forbidden, check app id", ErrAuth)
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(resp.Body)}
	}

	var result nullbrSearchResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrMalformedResponse, err)
	}

	hits := make([]model.SearchHit, 0, len(result.Items))
	for _, it := range result.Items {
		hits = append(hits, it.toHit())
	}

	if result.Page == 0 {
		result.Page = page
	}

	log.Info().Str("query", query).Int("count", len(hits)).Msg("✅ 搜索完成")

	return &model.SearchPage{
		Items:        hits,
		Page:         result.Page,
		TotalPages:   result.TotalPages,
		TotalResults: result.TotalResults,
	}, nil
}

// FetchResources gets the links of one resource type for a title.
// "Not found" is returned as an empty bundle.
func (s *NullbrService) FetchResources(ctx context.Context, tmdbID string, rt model.ResourceType, media model.MediaType) (*model.ResourceBundle, error) {
	if s.apiKey == "" {
		return nil, ErrMissingCredential
	}
	if tmdbID == "" {
		return nil, ErrMissingTMDBID
	}
	if !media.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMedia, media)
	}
	if _, ok := model.ParseResourceType(string(rt)); !ok {
		return nil, fmt.Errorf("unknown resource type %q", rt)
	}

	path := fmt.Sprintf("/%s/%s/%s", media, url.PathEscape(tmdbID), rt)
	resp, err := s.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		log.Info().Str("tmdbid", tmdbID).Str("type", string(rt)).Msg("未找到资源")
		return &model.ResourceBundle{Type: rt}, nil
	case http.StatusUnauthorized:
		return nil, ErrInsufficientPermission
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: resource access forbidden", ErrAuth)
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: string(resp.Body)}
	}

	var raw map[string]json.RawMessage
	if err := resp.DecodeJSON(&raw); err != nil {
		return nil, fmt.Errorf("%w: resources: %v", ErrMalformedResponse, err)
	}

	bundle := &model.ResourceBundle{Type: rt}
	list, ok := raw[string(rt)]
	if !ok || string(list) == "null" {
		return bundle, nil
	}

	var records []nullbrRecord
	if err := json.Unmarshal(list, &records); err != nil {
		return nil, fmt.Errorf("%w: %s list: %v", ErrMalformedResponse, rt, err)
	}
	for _, r := range records {
		bundle.Records = append(bundle.Records, r.toRecord())
	}

	log.Info().
		Str("tmdbid", tmdbID).
		Str("type", string(rt)).
		Int("count", len(bundle.Records)).
		Msg("获取资源成功")

	return bundle, nil
}

// flexString accepts JSON strings and numbers
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexBool accepts JSON booleans, 0/1 and "true"/"false"
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		if n, err := strconv.ParseFloat(string(b), 64); err == nil {
			*f = n != 0
			return nil
		}
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}
