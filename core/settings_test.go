package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySettingType(t *testing.T) {
	tests := []struct {
		key  string
		want SettingType
	}{
		{"mail", SettingTypeMail},
		{"mqttAuthorization", SettingTypeMqttAuthorization},
		{"securitySettings", SettingTypeUnknown},
		{"MAIL", SettingTypeUnknown},
		{"", SettingTypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifySettingType(tt.key), "key %q", tt.key)
	}
}

func TestRedactSettings_MailPayloadShapes(t *testing.T) {
	payloads := []SettingsPayload{
		{},
		{"password": "s3cret"},
		{"password": nil},
		{"password": 42, "smtpHost": "smtp.local"},
		{"password": map[string]interface{}{"nested": "x"}, "username": "u"},
		{"smtpHost": "smtp.local", "smtpPort": float64(25)},
	}
	for i, p := range payloads {
		t.Run(fmt.Sprintf("shape_%d", i), func(t *testing.T) {
			stored := &AdminSettings{Key: MailSettingsKey, JSONValue: p}
			before := stored.JSONValue.Clone()

			out := RedactSettings(stored)

			_, present := out.JSONValue["password"]
			assert.False(t, present)
			assert.Equal(t, before, stored.JSONValue, "stored record must not change")
			for k, v := range p {
				if k != "password" {
					assert.Equal(t, v, out.JSONValue[k])
				}
			}
		})
	}
}

func TestRedactSettings_OtherKeysUntouched(t *testing.T) {
	s := &AdminSettings{Key: "general", JSONValue: SettingsPayload{"password": "visible", "baseUrl": "http://x"}}
	out := RedactSettings(s)
	assert.Equal(t, "visible", out.JSONValue.String("password"))
	assert.Nil(t, RedactSettings(nil))
}

func TestRedactSettings_NoAliasing(t *testing.T) {
	nested := map[string]interface{}{"a": "b"}
	s := &AdminSettings{Key: MailSettingsKey, JSONValue: SettingsPayload{"password": "x", "extra": nested}}

	out := RedactSettings(s)
	out.JSONValue["extra"].(map[string]interface{})["a"] = "changed"

	assert.Equal(t, "b", nested["a"])
}

func TestRedactUser(t *testing.T) {
	u := &User{Email: "a@b.c", AdditionalInfo: map[string]interface{}{
		UserPasswordHistoryField: map[string]interface{}{"1": "hash"},
		"lang":                   "en",
	}}
	out := RedactUser(u)
	assert.NotContains(t, out.AdditionalInfo, UserPasswordHistoryField)
	assert.Equal(t, "en", out.AdditionalInfo["lang"])
	assert.Contains(t, u.AdditionalInfo, UserPasswordHistoryField)
}

func TestSettingsPayload_Helpers(t *testing.T) {
	p := SettingsPayload{"a": "1", "n": nil}
	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("n"))
	assert.False(t, p.Has("missing"))

	with := p.With("b", "2")
	assert.Equal(t, "2", with.String("b"))
	assert.False(t, p.Has("b"))

	var nilPayload SettingsPayload
	assert.Equal(t, "v", nilPayload.With("k", "v").String("k"))
}

func TestSettingsPayload_Decode(t *testing.T) {
	p := SettingsPayload{"priorities": []interface{}{"MQTT_BASIC", "X_509"}}
	var auth MqttAuthSettings
	require.NoError(t, p.Decode(&auth))
	assert.Equal(t, []MqttAuthProviderType{MqttAuthProviderBasic, MqttAuthProviderX509}, auth.Priorities)

	bad := SettingsPayload{"priorities": "not-a-list"}
	assert.Error(t, bad.Decode(&auth))
}

func TestErrorCodeOf(t *testing.T) {
	nf := NewNotFoundError("No Administration settings found for key: %s", "x")
	wrapped := fmt.Errorf("lookup: %w", nf)
	assert.Equal(t, ItemNotFound, ErrorCodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, General, ErrorCodeOf(errors.New("plain")))
	assert.False(t, IsNotFound(nil))

	cause := errors.New("auth rejected")
	df := NewDelegatedFailureError("Unable to send mail", cause)
	assert.ErrorIs(t, df, cause)
	assert.Equal(t, "Unable to send mail", df.Error())
	assert.Equal(t, "PERMISSION_DENIED", PermissionDenied.String())
}
