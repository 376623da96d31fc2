package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/gojournal/sync-module/internal/config"
	"github.com/bigkaa/gojournal/sync-module/internal/database"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/wire"
	"github.com/bigkaa/gojournal/sync-module/internal/filestore"
	"github.com/bigkaa/gojournal/sync-module/internal/peerclient"
	"github.com/bigkaa/gojournal/sync-module/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("gojournal_test"),
		postgres.WithUsername("gojournal"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	os.Setenv("SM_DB_HOST", host)
	os.Setenv("SM_DB_PORT", port.Port())
	os.Setenv("SM_DB_NAME", "gojournal_test")
	os.Setenv("SM_DB_USER", "gojournal")
	os.Setenv("SM_DB_PASSWORD", "test-password")
	os.Setenv("SM_DB_SSL_MODE", "disable")
	os.Setenv("SM_DATA_DIR", t.TempDir())
	os.Setenv("SM_PEER_JWT_SECRET", "integration-test-secret-0123456789ab")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := testLogger()
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// fixture — сущности одного тестового сценария.
type fixture struct {
	pool    *pgxpool.Pool
	user    *model.User
	journal *model.Journal
	server  *model.RemoteServer
	store   *filestore.FileStore
}

// setupFixture создаёт пользователя, локальный журнал и удалённый
// сервер с адресом peerURL.
func setupFixture(t *testing.T, pool *pgxpool.Pool, peerURL string) *fixture {
	t.Helper()
	ctx := context.Background()

	user := &model.User{UID: uuid.New().String(), Username: "alice"}
	if err := repository.NewUserRepository(pool).Create(ctx, user); err != nil {
		t.Fatalf("Создание пользователя: %v", err)
	}

	journal := &model.Journal{UID: uuid.New().String(), UserID: user.ID, Title: "Дневник"}
	if err := repository.NewJournalRepository(pool).Create(ctx, journal); err != nil {
		t.Fatalf("Создание журнала: %v", err)
	}

	server := &model.RemoteServer{
		UID:         uuid.New().String(),
		Name:        "peer-1",
		URL:         peerURL,
		TokenSecret: "peer-shared-secret-0123456789abcdef",
	}
	if err := repository.NewRemoteServerRepository(pool).Create(ctx, server); err != nil {
		t.Fatalf("Создание удалённого сервера: %v", err)
	}

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Создание filestore: %v", err)
	}

	return &fixture{pool: pool, user: user, journal: journal, server: server, store: store}
}

func (f *fixture) addEntry(t *testing.T, title string) *model.Entry {
	t.Helper()
	e := &model.Entry{
		UID:       uuid.New().String(),
		JournalID: f.journal.ID,
		UserID:    f.user.ID,
		EntryDate: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		Title:     title,
		Contents:  "содержимое " + title,
	}
	if err := repository.NewEntryRepository(f.pool).Create(context.Background(), e); err != nil {
		t.Fatalf("Создание записи %q: %v", title, err)
	}
	return e
}

// mockPeer — принимающая сторона для push-тестов.
type mockPeer struct {
	mu       sync.Mutex
	received []wire.EntrySyncPayload
	// reject — uid записей, на которые пир отвечает 422
	reject map[string]bool
	server *httptest.Server
}

func newMockPeer(t *testing.T) *mockPeer {
	t.Helper()
	p := &mockPeer{reject: map[string]bool{}}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sync/entries" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var payload wire.EntrySyncPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.reject[payload.UID] {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		p.received = append(p.received, payload)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *mockPeer) receivedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func newSyncService(t *testing.T, f *fixture, batchSize int) *EntrySyncService {
	t.Helper()
	client, err := peerclient.New("", 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("Создание peer-клиента: %v", err)
	}
	svc := NewEntrySyncService(f.pool, client, f.store, "test-server", testLogger())
	svc.SetBatchSize(batchSize)
	return svc
}

// --- Тесты push-синхронизации ---

func TestEntrySync_RunPushesAllBatches(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	peer := newMockPeer(t)
	f := setupFixture(t, pool, peer.server.URL)

	for i := 0; i < 5; i++ {
		f.addEntry(t, "запись")
	}

	svc := newSyncService(t, f, 2)
	result, err := svc.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}

	// 5 записей пакетами по 2: 2 + 2 + 1
	if result.Batches != 3 {
		t.Errorf("Batches = %d, хотели 3", result.Batches)
	}
	if result.Synced != 5 || result.Failed != 0 || result.Aborted {
		t.Errorf("Synced=%d Failed=%d Aborted=%v", result.Synced, result.Failed, result.Aborted)
	}
	if peer.receivedCount() != 5 {
		t.Errorf("пир получил %d записей, хотели 5", peer.receivedCount())
	}

	// Повторный запуск идемпотентен: кандидатов нет
	result2, err := svc.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() повторный: %v", err)
	}
	if result2.Batches != 0 || result2.Synced != 0 {
		t.Errorf("повторный запуск: Batches=%d Synced=%d", result2.Batches, result2.Synced)
	}
	if peer.receivedCount() != 5 {
		t.Errorf("после повторного запуска пир получил %d записей", peer.receivedCount())
	}
}

func TestEntrySync_RunRecordsFailures(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	peer := newMockPeer(t)
	f := setupFixture(t, pool, peer.server.URL)

	good := f.addEntry(t, "принимаемая")
	bad := f.addEntry(t, "отклоняемая")
	peer.reject[bad.UID] = true

	svc := newSyncService(t, f, 50)
	result, err := svc.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if result.Synced != 1 || result.Failed != 1 {
		t.Fatalf("Synced=%d Failed=%d, хотели 1/1", result.Synced, result.Failed)
	}

	statuses := repository.NewSyncedEntryRepository(pool)
	gotGood, err := statuses.Get(ctx, good.ID, f.server.ID)
	if err != nil || gotGood.Status != model.SyncStatusSynced {
		t.Errorf("статус принятой: %v, %v", gotGood, err)
	}
	gotBad, err := statuses.Get(ctx, bad.ID, f.server.ID)
	if err != nil || gotBad.Status != model.SyncStatusFailed {
		t.Errorf("статус отклонённой: %v, %v", gotBad, err)
	}

	// Отклонённая запись остаётся кандидатом следующего запуска
	peer.reject = map[string]bool{}
	result2, err := svc.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() повторный: %v", err)
	}
	if result2.Synced != 1 {
		t.Errorf("повторный запуск доставил %d записей, хотели 1", result2.Synced)
	}
}

// flakyUserRepo — UserRepository, ломающийся после заданного числа
// обращений GetByID. Имитирует потерю соединения в середине запуска.
type flakyUserRepo struct {
	repository.UserRepository
	mu        sync.Mutex
	remaining int
}

func (r *flakyUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remaining <= 0 {
		return nil, errors.New("соединение потеряно")
	}
	r.remaining--
	return r.UserRepository.GetByID(ctx, id)
}

// Сбой в середине запуска прерывает его, не теряя итогов прежних
// пакетов: откатывается только savepoint сбойного пакета, транзакция
// фиксирует статусы, записанные до него.
func TestEntrySync_AbortPreservesEarlierBatches(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	peer := newMockPeer(t)
	f := setupFixture(t, pool, peer.server.URL)

	entries := make([]*model.Entry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, f.addEntry(t, "запись"))
	}

	svc := newSyncService(t, f, 2)
	// Гидрация первого пакета (2 записи) проходит, третья запись ломается
	svc.users = &flakyUserRepo{UserRepository: svc.users, remaining: 2}

	result, err := svc.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}
	if !result.Aborted {
		t.Fatal("запуск не прерван")
	}
	if result.Batches != 1 || result.Synced != 2 {
		t.Errorf("Batches=%d Synced=%d, хотели 1 и 2", result.Batches, result.Synced)
	}
	if peer.receivedCount() != 2 {
		t.Errorf("пир получил %d записей, хотели 2", peer.receivedCount())
	}

	// Статусы первого пакета зафиксированы, сбойного — нет
	statuses := repository.NewSyncedEntryRepository(pool)
	for _, e := range entries[:2] {
		se, err := statuses.Get(ctx, e.ID, f.server.ID)
		if err != nil {
			t.Fatalf("статус записи %d: %v", e.ID, err)
		}
		if se.Status != model.SyncStatusSynced {
			t.Errorf("запись %d: статус %v", e.ID, se.Status)
		}
	}
	for _, e := range entries[2:] {
		if _, err := statuses.Get(ctx, e.ID, f.server.ID); err != repository.ErrNotFound {
			t.Errorf("запись %d: статус пережил откат savepoint: %v", e.ID, err)
		}
	}

	// Следующий запуск добирает недоставленные записи
	svc2 := newSyncService(t, f, 2)
	result2, err := svc2.Run(ctx, f.journal, f.server)
	if err != nil {
		t.Fatalf("Run() повторный: %v", err)
	}
	if result2.Aborted || result2.Synced != 3 {
		t.Errorf("повторный запуск: Aborted=%v Synced=%d, хотели false и 3",
			result2.Aborted, result2.Synced)
	}
	if peer.receivedCount() != 5 {
		t.Errorf("суммарно пир получил %d записей, хотели 5", peer.receivedCount())
	}
}

func TestEntrySync_PayloadCarriesChildren(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	peer := newMockPeer(t)
	f := setupFixture(t, pool, peer.server.URL)

	e := f.addEntry(t, "полная")

	tagVal := "ok"
	if err := repository.NewEntryTagRepository(pool).BulkUpsert(ctx, []*model.EntryTag{
		{EntryID: e.ID, Key: "mood", Value: &tagVal},
	}); err != nil {
		t.Fatalf("теги: %v", err)
	}

	cfRepo := repository.NewCustomFieldRepository(pool)
	field := &model.CustomField{
		UID: uuid.New().String(), JournalID: f.journal.ID,
		Name: "Оценка", Type: model.CustomFieldTypeNumber,
	}
	if err := cfRepo.CreateField(ctx, field); err != nil {
		t.Fatalf("поле: %v", err)
	}
	seven := 7.0
	if err := cfRepo.BulkUpsertValues(ctx, []*model.CustomFieldEntry{
		{EntryID: e.ID, CustomFieldID: field.ID, Value: model.CustomFieldValue{Number: &seven}},
	}); err != nil {
		t.Fatalf("значение поля: %v", err)
	}

	// received-файл и requested-файл: второй не должен уйти на провод
	fileRepo := repository.NewEntryFileRepository(pool)
	recvFile := &model.EntryFile{
		UID: uuid.New().String(), EntryID: e.ID,
		MimeType: "text", MimeSubtype: "plain",
		Status: model.FileStatusReceived, StoragePath: "aa/bb", Size: 3,
	}
	reqFile := &model.EntryFile{
		UID: uuid.New().String(), EntryID: e.ID,
		MimeType: "image", MimeSubtype: "png",
		Status: model.FileStatusRequested,
	}
	for _, file := range []*model.EntryFile{recvFile, reqFile} {
		if err := fileRepo.Create(ctx, file); err != nil {
			t.Fatalf("файл: %v", err)
		}
	}

	svc := newSyncService(t, f, 50)
	if _, err := svc.Run(ctx, f.journal, f.server); err != nil {
		t.Fatalf("Run() ошибка: %v", err)
	}

	if peer.receivedCount() != 1 {
		t.Fatalf("пир получил %d записей", peer.receivedCount())
	}
	got := peer.received[0]
	if got.UID != e.UID || got.JournalUID != f.journal.UID || got.UserUID != f.user.UID {
		t.Errorf("идентификаторы payload: %s / %s / %s", got.UID, got.JournalUID, got.UserUID)
	}
	if got.Date != "2026-08-30" {
		t.Errorf("Date = %q", got.Date)
	}
	if len(got.Tags) != 1 || got.Tags[0].Key != "mood" {
		t.Errorf("Tags = %+v", got.Tags)
	}
	if len(got.CustomFields) != 1 || got.CustomFields[0].CustomFieldUID != field.UID {
		t.Errorf("CustomFields = %+v", got.CustomFields)
	}
	if got.CustomFields[0].NumberValue == nil || *got.CustomFields[0].NumberValue != 7 {
		t.Errorf("NumberValue = %v", got.CustomFields[0].NumberValue)
	}
	if len(got.Files) != 1 || got.Files[0].UID != recvFile.UID {
		t.Errorf("Files = %+v (requested-файл не должен синхронизироваться)", got.Files)
	}
}

func TestEntrySync_QueueSyncOutcomes(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	peer := newMockPeer(t)
	f := setupFixture(t, pool, peer.server.URL)
	svc := newSyncService(t, f, 50)

	// Журнал не найден
	outcome, err := svc.QueueSync(ctx, f.journal.ID+1000, f.server.ID, f.user.UID)
	if err != nil || outcome != QueueOutcomeJournalNotFound {
		t.Errorf("несуществующий журнал: %v, %v", outcome, err)
	}

	// Сервер не найден
	outcome, err = svc.QueueSync(ctx, f.journal.ID, f.server.ID+1000, f.user.UID)
	if err != nil || outcome != QueueOutcomeRemoteServerNotFound {
		t.Errorf("несуществующий сервер: %v, %v", outcome, err)
	}

	// Не владелец журнала
	stranger := &model.User{UID: uuid.New().String(), Username: "bob"}
	if err := repository.NewUserRepository(pool).Create(ctx, stranger); err != nil {
		t.Fatalf("Создание пользователя: %v", err)
	}
	outcome, err = svc.QueueSync(ctx, f.journal.ID, f.server.ID, stranger.UID)
	if err != nil || outcome != QueueOutcomePermissionDenied {
		t.Errorf("чужой журнал: %v, %v", outcome, err)
	}

	// Нелокальный журнал
	remoteJournal := &model.Journal{
		UID: uuid.New().String(), UserID: f.user.ID,
		Title: "Чужой", RemoteServerID: &f.server.ID,
	}
	if err := repository.NewJournalRepository(pool).Create(ctx, remoteJournal); err != nil {
		t.Fatalf("Создание журнала: %v", err)
	}
	outcome, err = svc.QueueSync(ctx, remoteJournal.ID, f.server.ID, f.user.UID)
	if err != nil || outcome != QueueOutcomeNotLocalJournal {
		t.Errorf("нелокальный журнал: %v, %v", outcome, err)
	}

	// Успешная постановка: фоновый запуск доставляет записи
	f.addEntry(t, "фоновая")
	outcome, err = svc.QueueSync(ctx, f.journal.ID, f.server.ID, f.user.UID)
	if err != nil || outcome != QueueOutcomeQueued {
		t.Fatalf("постановка в очередь: %v, %v", outcome, err)
	}
	svc.Wait()
	if peer.receivedCount() != 1 {
		t.Errorf("фоновый запуск доставил %d записей", peer.receivedCount())
	}
}

// --- Тесты приёма ---

func receivePayload(f *fixture) *wire.EntrySyncPayload {
	created := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	return &wire.EntrySyncPayload{
		UID:        uuid.New().String(),
		JournalUID: f.journal.UID,
		UserUID:    f.user.UID,
		Date:       "2026-08-20",
		Title:      "Присланная",
		Contents:   "текст с другого сервера",
		CreatedAt:  created,
		UpdatedAt:  created.Add(time.Hour),
	}
}

func newReceiveService(f *fixture) *ReceiveService {
	return NewReceiveService(f.pool, NewResolveCache(100, time.Minute), f.store, testLogger())
}

func TestReceive_EntryLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	cfRepo := repository.NewCustomFieldRepository(pool)
	field := &model.CustomField{
		UID: uuid.New().String(), JournalID: f.journal.ID,
		Name: "Место", Type: model.CustomFieldTypeText,
	}
	if err := cfRepo.CreateField(ctx, field); err != nil {
		t.Fatalf("поле: %v", err)
	}

	payload := receivePayload(f)
	home := "дом"
	payload.Tags = []wire.EntryTagSync{
		{Key: "mood", Value: &home, CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
		{Key: "draft", CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}
	payload.CustomFields = []wire.EntryCustomFieldSync{
		{CustomFieldUID: field.UID, TextValue: &home, CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}
	fileUID := uuid.New().String()
	payload.Files = []wire.EntryFileSync{
		{UID: fileUID, MimeType: "image", MimeSubtype: "png", Size: 4,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}

	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil {
		t.Fatalf("ReceiveEntry() ошибка: %v", err)
	}
	if result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("Outcome = %v", result.Outcome)
	}

	entry, err := repository.NewEntryRepository(pool).GetByUID(ctx, payload.UID)
	if err != nil {
		t.Fatalf("запись не создана: %v", err)
	}
	// Метки времени источника сохранены
	if !entry.CreatedAt.Equal(payload.CreatedAt) || !entry.UpdatedAt.Equal(payload.UpdatedAt) {
		t.Errorf("метки времени: %v / %v", entry.CreatedAt, entry.UpdatedAt)
	}

	tags, _ := repository.NewEntryTagRepository(pool).ListByEntry(ctx, entry.ID)
	if len(tags) != 2 {
		t.Errorf("тегов %d, хотели 2", len(tags))
	}

	// Новый файл создан в состоянии requested
	file, err := repository.NewEntryFileRepository(pool).GetByUID(ctx, fileUID)
	if err != nil {
		t.Fatalf("файл не создан: %v", err)
	}
	if file.IsReceived() {
		t.Error("новый файл сразу received")
	}

	// Повторный приём с изменёнными коллекциями: diff-замена
	payload.Title = "Обновлённая"
	payload.Tags = payload.Tags[:1]
	payload.CustomFields = nil
	payload.Files = nil
	result, err = svc.ReceiveEntry(ctx, payload)
	if err != nil || result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("повторный приём: %v, %v", result, err)
	}

	entry2, _ := repository.NewEntryRepository(pool).GetByUID(ctx, payload.UID)
	if entry2.ID != entry.ID || entry2.Title != "Обновлённая" {
		t.Errorf("повторный приём: ID=%d Title=%q", entry2.ID, entry2.Title)
	}
	tags, _ = repository.NewEntryTagRepository(pool).ListByEntry(ctx, entry.ID)
	if len(tags) != 1 || tags[0].Key != "mood" {
		t.Errorf("после diff теги: %+v", tags)
	}
	values, _ := cfRepo.ListValuesByEntry(ctx, entry.ID)
	if len(values) != 0 {
		t.Errorf("после diff значений полей %d", len(values))
	}
	if _, err := repository.NewEntryFileRepository(pool).GetByUID(ctx, fileUID); err != repository.ErrNotFound {
		t.Errorf("файл пережил diff: %v", err)
	}
}

// Повторная доставка записи с тем же файлом идемпотентна: requested-файл,
// чьё содержимое ещё не догнало метаданные, остаётся requested, а его
// метаданные обновляются присланными.
func TestReceive_RedeliveryKeepsRequestedFile(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	payload := receivePayload(f)
	fileUID := uuid.New().String()
	payload.Files = []wire.EntryFileSync{
		{UID: fileUID, MimeType: "image", MimeSubtype: "png", Size: 4,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}

	if result, err := svc.ReceiveEntry(ctx, payload); err != nil || result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("первый приём: %v, %v", result, err)
	}

	// Идентичная повторная доставка — содержимое файла ещё не пришло
	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil {
		t.Fatalf("повторный приём: %v", err)
	}
	if result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("повторный Outcome = %v", result.Outcome)
	}

	// Третья доставка обновляет метаданные файла
	name := "фото.png"
	payload.Files[0].Name = &name
	payload.Files[0].Size = 9
	if result, err := svc.ReceiveEntry(ctx, payload); err != nil || result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("третий приём: %v, %v", result, err)
	}

	file, err := repository.NewEntryFileRepository(pool).GetByUID(ctx, fileUID)
	if err != nil {
		t.Fatalf("файл: %v", err)
	}
	if file.IsReceived() {
		t.Error("файл стал received без содержимого")
	}
	if file.Name == nil || *file.Name != name || file.Size != 9 {
		t.Errorf("метаданные файла не обновлены: %+v", file)
	}
}

func TestReceive_CustomFieldNotFoundRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	payload := receivePayload(f)
	unknown := uuid.New().String()
	val := "x"
	payload.CustomFields = []wire.EntryCustomFieldSync{
		{CustomFieldUID: unknown, TextValue: &val,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}

	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil {
		t.Fatalf("ReceiveEntry() ошибка: %v", err)
	}
	if result.Outcome != ReceiveOutcomeCustomFieldNotFound {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if len(result.UIDs) != 1 || result.UIDs[0] != unknown {
		t.Errorf("UIDs = %v", result.UIDs)
	}

	// Отклонение откатывает и саму запись
	if _, err := repository.NewEntryRepository(pool).GetByUID(ctx, payload.UID); err != repository.ErrNotFound {
		t.Errorf("запись пережила откат: %v", err)
	}
}

func TestReceive_CustomFieldInvalid(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	min, max := 1.0, 10.0
	field := &model.CustomField{
		UID: uuid.New().String(), JournalID: f.journal.ID,
		Name: "Оценка", Type: model.CustomFieldTypeNumber,
		NumberMin: &min, NumberMax: &max,
	}
	if err := repository.NewCustomFieldRepository(pool).CreateField(ctx, field); err != nil {
		t.Fatalf("поле: %v", err)
	}

	payload := receivePayload(f)
	over := 42.0
	payload.CustomFields = []wire.EntryCustomFieldSync{
		{CustomFieldUID: field.UID, NumberValue: &over,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}

	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil {
		t.Fatalf("ReceiveEntry() ошибка: %v", err)
	}
	if result.Outcome != ReceiveOutcomeCustomFieldInvalid {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if len(result.UIDs) != 1 || result.UIDs[0] != field.UID {
		t.Errorf("UIDs = %v", result.UIDs)
	}
}

func TestReceive_FileAttachedElsewhere(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	// Файл уже привязан к другой записи
	other := f.addEntry(t, "другая")
	takenUID := uuid.New().String()
	if err := repository.NewEntryFileRepository(pool).Create(ctx, &model.EntryFile{
		UID: takenUID, EntryID: other.ID,
		MimeType: "text", MimeSubtype: "plain",
		Status: model.FileStatusReceived, StoragePath: "aa/bb", Size: 1,
	}); err != nil {
		t.Fatalf("файл: %v", err)
	}

	payload := receivePayload(f)
	payload.Files = []wire.EntryFileSync{
		{UID: takenUID, MimeType: "text", MimeSubtype: "plain", Size: 1,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}

	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil {
		t.Fatalf("ReceiveEntry() ошибка: %v", err)
	}
	if result.Outcome != ReceiveOutcomeFileNotFound {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if len(result.UIDs) != 1 || result.UIDs[0] != takenUID {
		t.Errorf("UIDs = %v", result.UIDs)
	}
}

func TestReceive_FileContent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	// Объявляем запись с новым файлом
	payload := receivePayload(f)
	fileUID := uuid.New().String()
	payload.Files = []wire.EntryFileSync{
		{UID: fileUID, MimeType: "text", MimeSubtype: "plain", Size: 8,
			CreatedAt: payload.CreatedAt, UpdatedAt: payload.CreatedAt},
	}
	if result, err := svc.ReceiveEntry(ctx, payload); err != nil || result.Outcome != ReceiveOutcomeSynced {
		t.Fatalf("ReceiveEntry(): %v, %v", result, err)
	}

	// Загружаем содержимое
	content := "вложение"
	file, err := svc.ReceiveFileContent(ctx, fileUID, strings.NewReader(content))
	if err != nil {
		t.Fatalf("ReceiveFileContent() ошибка: %v", err)
	}
	if !file.IsReceived() {
		t.Error("файл не received после загрузки")
	}
	if file.Size != int64(len(content)) {
		t.Errorf("Size = %d, хотели %d", file.Size, len(content))
	}

	got, err := f.store.ReadFile(file.StoragePath)
	if err != nil {
		t.Fatalf("содержимое не на диске: %v", err)
	}
	defer got.Close()
	data, _ := io.ReadAll(got)
	if string(data) != content {
		t.Errorf("содержимое = %q, хотели %q", data, content)
	}

	// Неизвестный uid
	if _, err := svc.ReceiveFileContent(ctx, uuid.New().String(), strings.NewReader("x")); err == nil {
		t.Error("ожидали ошибку для неизвестного uid")
	}
}

func TestReceive_UnknownJournalAndUser(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	f := setupFixture(t, pool, "https://unused.example.com")
	svc := newReceiveService(f)

	payload := receivePayload(f)
	payload.JournalUID = uuid.New().String()
	result, err := svc.ReceiveEntry(ctx, payload)
	if err != nil || result.Outcome != ReceiveOutcomeJournalNotFound {
		t.Errorf("неизвестный журнал: %v, %v", result, err)
	}

	payload = receivePayload(f)
	payload.UserUID = uuid.New().String()
	result, err = svc.ReceiveEntry(ctx, payload)
	if err != nil || result.Outcome != ReceiveOutcomeUserNotFound {
		t.Errorf("неизвестный пользователь: %v, %v", result, err)
	}
}
