package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"brokeradmin/core"
	"brokeradmin/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// callLog records the order of collaborator calls across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSettingsStore struct {
	records map[string]*core.AdminSettings
	saves   []*core.AdminSettings
	finds   int
	saveErr error
	findErr error
	log     *callLog
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{records: map[string]*core.AdminSettings{}}
}

func (f *fakeSettingsStore) FindAdminSettingsByKey(_ context.Context, key string) (*core.AdminSettings, error) {
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	r, ok := f.records[key]
	if !ok {
		return nil, storage.ErrSettingsNotFound
	}
	return r.Clone(), nil
}

func (f *fakeSettingsStore) SaveAdminSettings(_ context.Context, s *core.AdminSettings) (*core.AdminSettings, error) {
	f.log.add("save:" + s.Key)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	stored := s.Clone()
	if old, ok := f.records[s.Key]; ok {
		stored.ID = old.ID
	} else {
		stored.ID = uuid.New()
	}
	f.records[s.Key] = stored
	f.saves = append(f.saves, stored.Clone())
	return stored.Clone(), nil
}

type fakeMailReconfigurer struct {
	calls int
	err   error
	log   *callLog
}

func (f *fakeMailReconfigurer) UpdateMailConfiguration(context.Context) error {
	f.calls++
	f.log.add("mail:reconfigure")
	return f.err
}

type fakeMqttNotifier struct {
	received []core.MqttAuthSettings
	err      error
	log      *callLog
}

func (f *fakeMqttNotifier) OnMqttAuthSettingUpdate(_ context.Context, s core.MqttAuthSettings) error {
	f.received = append(f.received, s)
	f.log.add("mqtt:notify")
	return f.err
}

type fakeTestMailSender struct {
	settings []core.MailSettings
	emails   []string
	err      error
}

func (f *fakeTestMailSender) SendTestMail(_ context.Context, s core.MailSettings, email string) error {
	f.settings = append(f.settings, s)
	f.emails = append(f.emails, email)
	return f.err
}

type fakeUserStore struct {
	users     map[uuid.UUID]*core.User
	creds     map[uuid.UUID]*core.UserCredentials
	reads     int
	credReads int
	deleted   []uuid.UUID
	createErr error
	failures  map[uuid.UUID]int
	log       *callLog
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:    map[uuid.UUID]*core.User{},
		creds:    map[uuid.UUID]*core.UserCredentials{},
		failures: map[uuid.UUID]int{},
	}
}

func (f *fakeUserStore) add(email, password string, enabled bool) *core.User {
	u := &core.User{
		ID:        uuid.New(),
		Email:     email,
		Authority: core.AuthoritySysAdmin,
		AdditionalInfo: map[string]interface{}{
			core.UserPasswordHistoryField: map[string]interface{}{"1": "old-hash"},
			"description":                 "ops",
		},
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	f.users[u.ID] = u
	f.creds[u.ID] = &core.UserCredentials{ID: uuid.New(), UserID: u.ID, Enabled: enabled, Password: string(hash)}
	return u.Clone()
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*core.User, error) {
	f.reads++
	f.log.add("user:get")
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	f.reads++
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserStore) CreateUser(_ context.Context, u *core.User, password string) (*core.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, storage.ErrDuplicateEmail
		}
	}
	created := u.Clone()
	created.ID = uuid.New()
	created.AdditionalInfo = map[string]interface{}{core.UserPasswordHistoryField: map[string]interface{}{"0": "hash"}}
	f.users[created.ID] = created
	f.creds[created.ID] = &core.UserCredentials{UserID: created.ID, Enabled: true, Password: password}
	return created.Clone(), nil
}

func (f *fakeUserStore) FindUsers(_ context.Context, link core.PageLink) (core.PageData[*core.User], error) {
	all := make([]*core.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	start := link.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + link.PageSize
	if end > len(all) {
		end = len(all)
	}
	items := make([]*core.User, 0, end-start)
	for _, u := range all[start:end] {
		items = append(items, u.Clone())
	}
	return core.NewPageData(items, int64(len(all)), link), nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	f.log.add("user:delete")
	if _, ok := f.users[id]; !ok {
		return storage.ErrUserNotFound
	}
	delete(f.users, id)
	delete(f.creds, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeUserStore) GetUserCredentials(_ context.Context, userID uuid.UUID) (*core.UserCredentials, error) {
	f.credReads++
	c, ok := f.creds[userID]
	if !ok {
		return nil, storage.ErrCredentialsNotFound
	}
	cp := *c
	cp.FailedLoginAttempts = f.failures[userID]
	return &cp, nil
}

func (f *fakeUserStore) RecordLoginFailure(_ context.Context, userID uuid.UUID, maxAttempts int) (int, bool, error) {
	f.failures[userID]++
	attempts := f.failures[userID]
	c := f.creds[userID]
	if maxAttempts > 0 && attempts >= maxAttempts && c.Enabled {
		c.Enabled = false
		return attempts, true, nil
	}
	return attempts, false, nil
}

func (f *fakeUserStore) ResetLoginFailures(_ context.Context, userID uuid.UUID) error {
	f.failures[userID] = 0
	return nil
}

// fakeConnectionStore pages a fixed list of descriptors in order.
type fakeConnectionStore struct {
	conns   []*core.WebSocketConnection
	fetches []core.PageLink
	err     error
}

func (f *fakeConnectionStore) withSessions(userID uuid.UUID, n int) *fakeConnectionStore {
	for i := 0; i < n; i++ {
		f.conns = append(f.conns, &core.WebSocketConnection{
			ID:       uuid.New(),
			UserID:   userID,
			ClientID: "client-" + uuid.NewString(),
		})
	}
	return f
}

func (f *fakeConnectionStore) FindConnectionsByUserID(_ context.Context, userID uuid.UUID, link core.PageLink) (core.PageData[*core.WebSocketConnection], error) {
	f.fetches = append(f.fetches, link)
	if f.err != nil {
		return core.PageData[*core.WebSocketConnection]{}, f.err
	}
	var owned []*core.WebSocketConnection
	for _, c := range f.conns {
		if c.UserID == userID {
			owned = append(owned, c)
		}
	}
	start := link.Offset()
	if start > len(owned) {
		start = len(owned)
	}
	end := start + link.PageSize
	if end > len(owned) {
		end = len(owned)
	}
	return core.NewPageData(owned[start:end], int64(len(owned)), link), nil
}

type fakeDisconnector struct {
	clientIDs []string
	errs      map[string]error
	log       *callLog
}

func (f *fakeDisconnector) Disconnect(_ context.Context, clientID string) error {
	f.clientIDs = append(f.clientIDs, clientID)
	f.log.add("session:disconnect")
	return f.errs[clientID]
}

type fakeTokenFactory struct {
	issued []core.SecurityUser
	err    error
}

func (f *fakeTokenFactory) CreateTokenPair(u core.SecurityUser) (core.TokenPair, error) {
	if f.err != nil {
		return core.TokenPair{}, f.err
	}
	f.issued = append(f.issued, u)
	return core.TokenPair{Token: "access-" + u.User.ID.String(), RefreshToken: "refresh-" + u.User.ID.String()}, nil
}
