package objects

import (
	"encoding/json"
	"fmt"
	"time"

	"lifemonitor/app/db/models"
	"lifemonitor/pkg/contextx"
)

const (
	DefaultScopeKey = "__default__"
	ProviderGithub  = "github"
)

type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

func (t *Token) Expiry() time.Time {
	if t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// ToBeRefreshed is true when the token expires within threshold.
func (t *Token) ToBeRefreshed(threshold time.Duration) bool {
	if t == nil || t.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(threshold).After(t.Expiry())
}

// ScopedTokens maps scopes to tokens; DefaultScopeKey names the fallback scope.
type ScopedTokens struct {
	Default string
	Tokens  map[string]*Token
}

func (s ScopedTokens) MarshalJSON() ([]byte, error) {
	raw := map[string]interface{}{}
	for scope, tok := range s.Tokens {
		raw[scope] = tok
	}
	if s.Default != "" {
		raw[DefaultScopeKey] = s.Default
	}
	return json.Marshal(raw)
}

func (s *ScopedTokens) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Tokens = map[string]*Token{}
	for k, v := range raw {
		if k == DefaultScopeKey {
			if err := json.Unmarshal(v, &s.Default); err != nil {
				return err
			}
			continue
		}
		tok := &Token{}
		if err := json.Unmarshal(v, tok); err != nil {
			return err
		}
		s.Tokens[k] = tok
	}
	return nil
}

// Get returns the token for scope, falling back to the default scope.
func (s ScopedTokens) Get(scope string) *Token {
	if tok, ok := s.Tokens[scope]; ok {
		return tok
	}
	if s.Default == "" {
		return nil
	}
	return s.Tokens[s.Default]
}

func (s *ScopedTokens) Set(scope string, tok *Token, asDefault bool) {
	if s.Tokens == nil {
		s.Tokens = map[string]*Token{}
	}
	s.Tokens[scope] = tok
	if asDefault || s.Default == "" {
		s.Default = scope
	}
}

type OAuthIdentity struct {
	*models.OAuthIdentity
	ContextObject
	PersistentObject
}

func (i *OAuthIdentity) Save(ctx *contextx.Context) error {
	touch(&i.PersistentObject, &i.ID, &i.CreatedAt, &i.UpdatedAt)
	if err := i.GetDB(ctx).Save(i.OAuthIdentity).Error; err != nil {
		return err
	}
	i.SetContext(ctx)
	i.SetCreated()
	return nil
}

func (i *OAuthIdentity) Delete(ctx *contextx.Context) error {
	if !i.IsCreated() {
		return fmt.Errorf("object %s isn't a persistent object, can't delete it", i.ID)
	}
	return i.GetDB(ctx).Delete(i.OAuthIdentity).Error
}

func (i *OAuthIdentity) GetTokens() (ScopedTokens, error) {
	tokens := ScopedTokens{Tokens: map[string]*Token{}}
	if i.Tokens == "" {
		return tokens, nil
	}
	err := json.Unmarshal([]byte(i.Tokens), &tokens)
	return tokens, err
}

func (i *OAuthIdentity) SetTokens(tokens ScopedTokens) error {
	b, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	i.Tokens = string(b)
	return nil
}

// GetToken selects the token for scope or the default one.
func (i *OAuthIdentity) GetToken(scope string) (*Token, error) {
	tokens, err := i.GetTokens()
	if err != nil {
		return nil, err
	}
	return tokens.Get(scope), nil
}

func (i *OAuthIdentity) SetToken(scope string, tok *Token, asDefault bool) error {
	tokens, err := i.GetTokens()
	if err != nil {
		return err
	}
	tokens.Set(scope, tok, asDefault)
	return i.SetTokens(tokens)
}

func (i *OAuthIdentity) GetUser(ctx *contextx.Context) (*User, error) {
	return QueryUserByID(ctx, i.UserID)
}

func NewOAuthIdentity(userID, provider, providerUserID, username string) *OAuthIdentity {
	return &OAuthIdentity{OAuthIdentity: &models.OAuthIdentity{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Username:       username,
	}}
}

func NewOAuthIdentityFromDB(ctx *contextx.Context, m *models.OAuthIdentity) *OAuthIdentity {
	if m == nil {
		return nil
	}
	i := &OAuthIdentity{OAuthIdentity: m}
	i.SetContext(ctx)
	i.SetCreated()
	return i
}

func QueryIdentityByID(ctx *contextx.Context, id string) (*OAuthIdentity, error) {
	m := &models.OAuthIdentity{}
	err := GetDB(ctx).Where("id = ?", id).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewOAuthIdentityFromDB(ctx, m), nil
}

func QueryIdentityByProviderUserID(ctx *contextx.Context, provider, providerUserID string) (*OAuthIdentity, error) {
	m := &models.OAuthIdentity{}
	err := GetDB(ctx).Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewOAuthIdentityFromDB(ctx, m), nil
}

func QueryIdentityByUser(ctx *contextx.Context, userID, provider string) (*OAuthIdentity, error) {
	m := &models.OAuthIdentity{}
	err := GetDB(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(m).Error
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewOAuthIdentityFromDB(ctx, m), nil
}
