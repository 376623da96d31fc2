// entry_sync.go — push-синхронизация журнала на удалённый сервер.
//
// QueueSync проверяет входные условия (журнал локальный, вызывающий —
// владелец, сервер известен) и запускает фоновый запуск; сам запуск
// выполняется в Run:
//  1. Одна транзакция БД на весь запуск, savepoint на каждый пакет
//  2. Пакет: выборка кандидатов по курсору → гидрация → параллельная
//     доставка → запись статусов → фиксация savepoint
//  3. Ошибка пакета откатывает только его savepoint; итоги ранее
//     зафиксированных пакетов сохраняются
//  4. Содержимое файлов принятых записей передаётся после коммита
//
// Prometheus-метрики:
//   - sm_sync_duration_seconds — длительность запуска
//   - sm_sync_entries_total — записи по итогам доставки (synced/failed)
//   - sm_sync_runs_total — запуски по итогам (completed/aborted)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/wire"
	"github.com/bigkaa/gojournal/sync-module/internal/filestore"
	"github.com/bigkaa/gojournal/sync-module/internal/peerclient"
	"github.com/bigkaa/gojournal/sync-module/internal/repository"
)

// Prometheus-метрики push-синхронизации.
var (
	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sm_sync_duration_seconds",
		Help:    "Длительность запуска push-синхронизации журнала",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s … ~204s
	}, []string{"server"})

	syncEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_sync_entries_total",
		Help: "Количество записей по итогам доставки",
	}, []string{"server", "result"}) // result: synced, failed

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_sync_runs_total",
		Help: "Количество запусков push-синхронизации по итогам",
	}, []string{"server", "result"}) // result: completed, aborted
)

const (
	// defaultBatchSize — размер пакета синхронизации; он же предел
	// одновременных доставок внутри пакета.
	defaultBatchSize = 50
	// runTimeout — предельная длительность одного фонового запуска.
	runTimeout = 30 * time.Minute
)

// QueueOutcome — итог постановки синхронизации в очередь.
type QueueOutcome int

const (
	// QueueOutcomeQueued — запуск принят и выполняется в фоне.
	QueueOutcomeQueued QueueOutcome = iota
	// QueueOutcomeJournalNotFound — журнал не найден.
	QueueOutcomeJournalNotFound
	// QueueOutcomeRemoteServerNotFound — удалённый сервер не найден.
	QueueOutcomeRemoteServerNotFound
	// QueueOutcomeNotLocalJournal — журнал получен с другого сервера,
	// push для него запрещён.
	QueueOutcomeNotLocalJournal
	// QueueOutcomePermissionDenied — вызывающий не владелец журнала.
	QueueOutcomePermissionDenied
)

// EntrySyncService — push-синхронизация записей журнала.
type EntrySyncService struct {
	pool       *pgxpool.Pool
	journals   repository.JournalRepository
	users      repository.UserRepository
	servers    repository.RemoteServerRepository
	tags       repository.EntryTagRepository
	fields     repository.CustomFieldRepository
	files      repository.EntryFileRepository
	client     *peerclient.Client
	store      *filestore.FileStore
	issuer     string
	batchSize  int
	logger     *slog.Logger
	background sync.WaitGroup
}

// NewEntrySyncService создаёт сервис push-синхронизации.
// issuer — имя этого сервера в peer-токенах.
// Репозитории дочерних коллекций работают поверх пула: гидрация
// читает вне транзакции запуска, соединение транзакции занято
// выборкой кандидатов и записью статусов.
func NewEntrySyncService(
	pool *pgxpool.Pool,
	client *peerclient.Client,
	store *filestore.FileStore,
	issuer string,
	logger *slog.Logger,
) *EntrySyncService {
	return &EntrySyncService{
		pool:      pool,
		journals:  repository.NewJournalRepository(pool),
		users:     repository.NewUserRepository(pool),
		servers:   repository.NewRemoteServerRepository(pool),
		tags:      repository.NewEntryTagRepository(pool),
		fields:    repository.NewCustomFieldRepository(pool),
		files:     repository.NewEntryFileRepository(pool),
		client:    client,
		store:     store,
		issuer:    issuer,
		batchSize: defaultBatchSize,
		logger:    logger.With(slog.String("component", "entry_sync")),
	}
}

// SetBatchSize переопределяет размер пакета. Используется в тестах.
func (s *EntrySyncService) SetBatchSize(n int) {
	s.batchSize = n
}

// QueueSync проверяет условия запуска и ставит синхронизацию журнала
// journalID на сервер serverID в фон. userUID — uid вызывающего,
// запуск разрешён только владельцу журнала.
func (s *EntrySyncService) QueueSync(ctx context.Context, journalID, serverID int64, userUID string) (QueueOutcome, error) {
	journal, err := s.journals.GetByID(ctx, journalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return QueueOutcomeJournalNotFound, nil
		}
		return 0, fmt.Errorf("получение журнала: %w", err)
	}

	if !journal.IsLocal() {
		return QueueOutcomeNotLocalJournal, nil
	}

	user, err := s.users.GetByUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return QueueOutcomePermissionDenied, nil
		}
		return 0, fmt.Errorf("получение пользователя: %w", err)
	}
	if journal.UserID != user.ID {
		return QueueOutcomePermissionDenied, nil
	}

	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return QueueOutcomeRemoteServerNotFound, nil
		}
		return 0, fmt.Errorf("получение удалённого сервера: %w", err)
	}

	// Fire-and-forget: запуск живёт дольше HTTP-запроса, контекст свой
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if _, err := s.Run(runCtx, journal, server); err != nil {
			s.logger.Error("Фоновый запуск синхронизации завершился ошибкой",
				slog.Int64("journal_id", journal.ID),
				slog.String("server", server.Name),
				slog.String("error", err.Error()),
			)
		}
	}()

	return QueueOutcomeQueued, nil
}

// Wait дожидается завершения фоновых запусков. Вызывается при
// остановке приложения.
func (s *EntrySyncService) Wait() {
	s.background.Wait()
}

// batchOutcome — итог одного пакета внутри запуска.
type batchOutcome struct {
	candidates int
	lastID     int64
	synced     []int64
	failed     []int64
	// accepted — принятые записи; их received-файлы передаются
	// после коммита
	accepted []*wire.EntrySyncPayload
}

// Run выполняет один запуск push-синхронизации журнала на сервер.
// Горизонт запуска фиксируется в его начале: записи, изменённые
// после старта, достанутся следующему запуску.
func (s *EntrySyncService) Run(ctx context.Context, journal *model.Journal, server *model.RemoteServer) (*model.SyncRunResult, error) {
	startedAt := time.Now().UTC()
	horizon := startedAt
	tokens := peerclient.NewHS256TokenProvider(server.TokenSecret, s.issuer)

	result := &model.SyncRunResult{
		JournalID:      journal.ID,
		RemoteServerID: server.ID,
		StartedAt:      startedAt,
	}

	s.logger.Info("Запуск push-синхронизации",
		slog.Int64("journal_id", journal.ID),
		slog.String("server", server.Name),
		slog.Time("horizon", horizon),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("открытие транзакции запуска: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	var afterID int64
	var acceptedPayloads []*wire.EntrySyncPayload

	for {
		outcome, err := s.runBatch(ctx, tx, journal, server, tokens, afterID, horizon)
		if err != nil {
			// Savepoint пакета откатился, итоги прежних пакетов
			// сохраняются коммитом транзакции
			s.logger.Error("Пакет синхронизации прерван",
				slog.Int64("journal_id", journal.ID),
				slog.String("server", server.Name),
				slog.Int64("after_id", afterID),
				slog.String("error", err.Error()),
			)
			result.Aborted = true
			break
		}
		if outcome.candidates == 0 {
			break
		}

		result.Batches++
		result.Synced += len(outcome.synced)
		result.Failed += len(outcome.failed)
		acceptedPayloads = append(acceptedPayloads, outcome.accepted...)
		afterID = outcome.lastID

		// Неполный пакет — кандидаты исчерпаны
		if outcome.candidates < s.batchSize {
			break
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("фиксация транзакции запуска: %w", err)
	}

	// Содержимое вложений передаётся после фиксации статусов:
	// ошибка передачи не отменяет доставку записи
	s.pushFileContents(ctx, server, tokens, acceptedPayloads)

	result.CompletedAt = time.Now().UTC()

	duration := result.CompletedAt.Sub(startedAt).Seconds()
	syncDuration.WithLabelValues(server.Name).Observe(duration)
	syncEntriesTotal.WithLabelValues(server.Name, "synced").Add(float64(result.Synced))
	syncEntriesTotal.WithLabelValues(server.Name, "failed").Add(float64(result.Failed))
	runResult := "completed"
	if result.Aborted {
		runResult = "aborted"
	}
	syncRunsTotal.WithLabelValues(server.Name, runResult).Inc()

	s.logger.Info("Push-синхронизация завершена",
		slog.Int64("journal_id", journal.ID),
		slog.String("server", server.Name),
		slog.Int("batches", result.Batches),
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed),
		slog.Bool("aborted", result.Aborted),
		slog.String("duration", fmt.Sprintf("%.2fs", duration)),
	)

	return result, nil
}

// runBatch обрабатывает один пакет в savepoint: выборка кандидатов,
// гидрация, доставка, запись статусов.
func (s *EntrySyncService) runBatch(
	ctx context.Context,
	tx pgx.Tx,
	journal *model.Journal,
	server *model.RemoteServer,
	tokens peerclient.TokenProvider,
	afterID int64,
	horizon time.Time,
) (*batchOutcome, error) {
	outcome := &batchOutcome{}

	err := repository.RunInSavepoint(ctx, tx, func(sp pgx.Tx) error {
		entries, err := repository.NewEntryRepository(sp).ListSyncCandidates(
			ctx, journal.ID, server.ID, afterID, horizon, s.batchSize)
		if err != nil {
			return fmt.Errorf("выборка кандидатов: %w", err)
		}
		outcome.candidates = len(entries)
		if len(entries) == 0 {
			return nil
		}
		outcome.lastID = entries[len(entries)-1].ID

		// Гидрация последовательная: ошибка гидрации прерывает пакет
		payloads := make(map[int64]*wire.EntrySyncPayload, len(entries))
		for _, e := range entries {
			payload, err := s.hydrateEntry(ctx, journal, e)
			if err != nil {
				return fmt.Errorf("гидрация записи %s: %w", e.UID, err)
			}
			payloads[e.ID] = payload
		}

		// Параллельная доставка: по горутине на запись, предел
		// параллелизма — размер пакета
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, e := range entries {
			wg.Add(1)
			go func(entryID int64, payload *wire.EntrySyncPayload) {
				defer wg.Done()

				err := s.client.PushEntry(ctx, server, tokens, payload)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Warn("Запись не доставлена",
						slog.String("entry_uid", payload.UID),
						slog.String("server", server.Name),
						slog.String("error", err.Error()),
					)
					outcome.failed = append(outcome.failed, entryID)
					return
				}
				outcome.synced = append(outcome.synced, entryID)
				outcome.accepted = append(outcome.accepted, payload)
			}(e.ID, payloads[e.ID])
		}
		wg.Wait()

		statuses := repository.NewSyncedEntryRepository(sp)
		if err := statuses.BulkUpsertStatus(ctx, outcome.synced, server.ID, model.SyncStatusSynced, horizon); err != nil {
			return fmt.Errorf("запись статусов synced: %w", err)
		}
		if err := statuses.BulkUpsertStatus(ctx, outcome.failed, server.ID, model.SyncStatusFailed, horizon); err != nil {
			return fmt.Errorf("запись статусов failed: %w", err)
		}

		s.logger.Debug("Пакет обработан",
			slog.Int64("journal_id", journal.ID),
			slog.Int("candidates", outcome.candidates),
			slog.Int("synced", len(outcome.synced)),
			slog.Int("failed", len(outcome.failed)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// hydrateEntry собирает wire-представление записи: три дочерние
// коллекции читаются параллельно, затем объединяются. Любая ошибка
// чтения проваливает гидрацию целиком.
func (s *EntrySyncService) hydrateEntry(ctx context.Context, journal *model.Journal, e *model.Entry) (*wire.EntrySyncPayload, error) {
	user, err := s.users.GetByID(ctx, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("автор записи: %w", err)
	}

	var (
		wg       sync.WaitGroup
		tags     []*model.EntryTag
		values   []*repository.CustomFieldValueWithUID
		files    []*model.EntryFile
		tagsErr  error
		valsErr  error
		filesErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		tags, tagsErr = s.tags.ListByEntry(ctx, e.ID)
	}()
	go func() {
		defer wg.Done()
		values, valsErr = s.fields.ListValuesByEntry(ctx, e.ID)
	}()
	go func() {
		defer wg.Done()
		// requested-файлы не синхронизируются: содержимого ещё нет
		files, filesErr = s.files.ListReceivedByEntry(ctx, e.ID)
	}()
	wg.Wait()

	if tagsErr != nil {
		return nil, fmt.Errorf("теги: %w", tagsErr)
	}
	if valsErr != nil {
		return nil, fmt.Errorf("значения полей: %w", valsErr)
	}
	if filesErr != nil {
		return nil, fmt.Errorf("файлы: %w", filesErr)
	}

	payload := &wire.EntrySyncPayload{
		UID:        e.UID,
		JournalUID: journal.UID,
		UserUID:    user.UID,
		Date:       e.EntryDate.Format(wire.DateLayout),
		Title:      e.Title,
		Contents:   e.Contents,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		Tags:       make([]wire.EntryTagSync, 0, len(tags)),
	}

	for _, tag := range tags {
		payload.Tags = append(payload.Tags, wire.EntryTagSync{
			Key:       tag.Key,
			Value:     tag.Value,
			CreatedAt: tag.CreatedAt,
			UpdatedAt: tag.UpdatedAt,
		})
	}

	for _, v := range values {
		cf := wire.EntryCustomFieldSync{
			CustomFieldUID: v.FieldUID,
			TextValue:      v.Value.Text,
			NumberValue:    v.Value.Number,
			BooleanValue:   v.Value.Boolean,
			CreatedAt:      v.CreatedAt,
			UpdatedAt:      v.UpdatedAt,
		}
		if v.Value.Date != nil {
			d := v.Value.Date.Format(wire.DateLayout)
			cf.DateValue = &d
		}
		payload.CustomFields = append(payload.CustomFields, cf)
	}

	for _, f := range files {
		payload.Files = append(payload.Files, wire.EntryFileSync{
			UID:         f.UID,
			Name:        f.Name,
			MimeType:    f.MimeType,
			MimeSubtype: f.MimeSubtype,
			MimeParam:   f.MimeParam,
			Size:        f.Size,
			CreatedAt:   f.CreatedAt,
			UpdatedAt:   f.UpdatedAt,
		})
	}

	return payload, nil
}

// pushFileContents передаёт содержимое received-файлов принятых
// записей. Best-effort: ошибки логируются, статус доставки записи
// уже зафиксирован.
func (s *EntrySyncService) pushFileContents(ctx context.Context, server *model.RemoteServer, tokens peerclient.TokenProvider, payloads []*wire.EntrySyncPayload) {
	for _, payload := range payloads {
		for _, f := range payload.Files {
			if err := s.pushOneFile(ctx, server, tokens, f); err != nil {
				s.logger.Warn("Содержимое файла не передано",
					slog.String("file_uid", f.UID),
					slog.String("server", server.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *EntrySyncService) pushOneFile(ctx context.Context, server *model.RemoteServer, tokens peerclient.TokenProvider, f wire.EntryFileSync) error {
	content, err := s.store.ReadFile(filestore.StoragePathFor(f.UID))
	if err != nil {
		return err
	}
	defer content.Close()

	contentType := f.MimeType + "/" + f.MimeSubtype
	return s.client.PushFileContent(ctx, server, tokens, f.UID, contentType, content, f.Size)
}
