package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Settings keys recognised by the dispatcher.
const (
	MailSettingsKey              = "mail"
	MqttAuthorizationSettingsKey = "mqttAuthorization"
	// SecuritySettingsKey is reserved for the security policy and bypasses type dispatch.
	SecuritySettingsKey = "securitySettings"

	// MailPasswordField is the secret field of the MAIL payload.
	MailPasswordField = "password"
)

// SettingType is the closed set of settings kinds derived from a settings key.
type SettingType int

const (
	SettingTypeUnknown SettingType = iota
	SettingTypeMail
	SettingTypeMqttAuthorization
)

// ClassifySettingType maps a settings key to its type. Unrecognised keys yield SettingTypeUnknown.
func ClassifySettingType(key string) SettingType {
	switch key {
	case MailSettingsKey:
		return SettingTypeMail
	case MqttAuthorizationSettingsKey:
		return SettingTypeMqttAuthorization
	default:
		return SettingTypeUnknown
	}
}

func (t SettingType) String() string {
	switch t {
	case SettingTypeMail:
		return "MAIL"
	case SettingTypeMqttAuthorization:
		return "MQTT_AUTHORIZATION"
	default:
		return "UNKNOWN"
	}
}

// SecretFields lists payload fields that must never leave the process for this type.
func (t SettingType) SecretFields() []string {
	if t == SettingTypeMail {
		return []string{MailPasswordField}
	}
	return nil
}

// SettingsPayload is a structured key-value document.
// Methods never modify the receiver; mutating helpers return a new payload.
type SettingsPayload map[string]interface{}

// Clone returns a deep copy of the payload.
func (p SettingsPayload) Clone() SettingsPayload {
	if p == nil {
		return nil
	}
	out := make(SettingsPayload, len(p))
	for k, v := range p {
		out[k] = deepCopyValue(v)
	}
	return out
}

// Without returns a copy of the payload with the given fields omitted.
func (p SettingsPayload) Without(fields ...string) SettingsPayload {
	out := p.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// With returns a copy of the payload with field set to value.
func (p SettingsPayload) With(field string, value interface{}) SettingsPayload {
	out := p.Clone()
	if out == nil {
		out = SettingsPayload{}
	}
	out[field] = deepCopyValue(value)
	return out
}

// Has reports whether field is present with a non-null value.
func (p SettingsPayload) Has(field string) bool {
	v, ok := p[field]
	return ok && v != nil
}

// String returns field as a string, or "" if absent or not a string.
func (p SettingsPayload) String(field string) string {
	s, _ := p[field].(string)
	return s
}

// Decode converts the payload into a typed value through its JSON form.
func (p SettingsPayload) Decode(out interface{}) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode settings payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode settings payload: %w", err)
	}
	return nil
}

// PayloadFrom converts a typed value into a SettingsPayload.
func PayloadFrom(v interface{}) (SettingsPayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings value: %w", err)
	}
	var p SettingsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode settings value: %w", err)
	}
	return p, nil
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case SettingsPayload:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}

// AdminSettings is a settings record. Key is unique and determines the SettingType.
type AdminSettings struct {
	ID          uuid.UUID       `json:"id"`
	Key         string          `json:"key"`
	JSONValue   SettingsPayload `json:"jsonValue"`
	CreatedTime time.Time       `json:"createdTime"`
}

// Type classifies the record by its key.
func (s *AdminSettings) Type() SettingType {
	return ClassifySettingType(s.Key)
}

// Clone returns a deep copy of the record.
func (s *AdminSettings) Clone() *AdminSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.JSONValue = s.JSONValue.Clone()
	return &c
}

// MailSettings is the typed view of the MAIL payload.
type MailSettings struct {
	MailFrom     string `json:"mailFrom"`
	SMTPProtocol string `json:"smtpProtocol"`
	SMTPHost     string `json:"smtpHost"`
	SMTPPort     int    `json:"smtpPort"`
	Timeout      int    `json:"timeout"`
	EnableTLS    bool   `json:"enableTls"`
	TLSVersion   string `json:"tlsVersion,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// MqttAuthProviderType names an MQTT client authentication provider.
type MqttAuthProviderType string

const (
	MqttAuthProviderBasic MqttAuthProviderType = "MQTT_BASIC"
	MqttAuthProviderX509  MqttAuthProviderType = "X_509"
	MqttAuthProviderJWT   MqttAuthProviderType = "JWT"
	MqttAuthProviderSCRAM MqttAuthProviderType = "SCRAM"
	MqttAuthProviderHTTP  MqttAuthProviderType = "HTTP"
)

// MqttAuthSettings is the typed view of the MQTT_AUTHORIZATION payload.
// Priorities orders the providers the broker consults when authenticating a client.
type MqttAuthSettings struct {
	Priorities []MqttAuthProviderType `json:"priorities"`
}
