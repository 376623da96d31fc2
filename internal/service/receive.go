// receive.go — приём записи от удалённого сервера.
//
// ReceiveEntry выполняет полную выверку записи в одной транзакции:
// upsert самой записи и diff-замена трёх дочерних коллекций (теги,
// значения пользовательских полей, файлы). Метки времени источника
// сохраняются как есть. Дисковые операции с содержимым файлов
// координируются с транзакцией через filestore.TxOps.
//
// Prometheus-метрики:
//   - sm_receive_entries_total — принятые записи по итогам
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/wire"
	"github.com/bigkaa/gojournal/sync-module/internal/filestore"
	"github.com/bigkaa/gojournal/sync-module/internal/repository"
)

var receiveEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sm_receive_entries_total",
	Help: "Количество принятых записей по итогам выверки",
}, []string{"result"})

// ReceiveOutcome — итог приёма записи.
type ReceiveOutcome int

const (
	// ReceiveOutcomeSynced — запись принята и выверена.
	ReceiveOutcomeSynced ReceiveOutcome = iota
	// ReceiveOutcomeJournalNotFound — журнал записи неизвестен.
	ReceiveOutcomeJournalNotFound
	// ReceiveOutcomeUserNotFound — автор записи неизвестен.
	ReceiveOutcomeUserNotFound
	// ReceiveOutcomeCustomFieldNotFound — часть пользовательских
	// полей не определена в журнале; запись отклонена целиком.
	ReceiveOutcomeCustomFieldNotFound
	// ReceiveOutcomeCustomFieldInvalid — значения не проходят
	// валидацию определений полей; запись отклонена целиком.
	ReceiveOutcomeCustomFieldInvalid
	// ReceiveOutcomeFileNotFound — uid файла уже привязан к другой
	// записи; запись отклонена целиком.
	ReceiveOutcomeFileNotFound
)

// metricLabel — значение лейбла result в метриках приёма.
func (o ReceiveOutcome) metricLabel() string {
	switch o {
	case ReceiveOutcomeSynced:
		return "synced"
	case ReceiveOutcomeJournalNotFound:
		return "journal_not_found"
	case ReceiveOutcomeUserNotFound:
		return "user_not_found"
	case ReceiveOutcomeCustomFieldNotFound:
		return "custom_field_not_found"
	case ReceiveOutcomeCustomFieldInvalid:
		return "custom_field_invalid"
	case ReceiveOutcomeFileNotFound:
		return "file_not_found"
	default:
		return "unknown"
	}
}

// ReceiveResult — типизированный итог приёма. UIDs заполнен для
// исходов, перечисляющих проблемные сущности.
type ReceiveResult struct {
	Outcome ReceiveOutcome
	// UIDs — uid проблемных полей или файлов
	UIDs []string
}

// errRejected — внутренний сигнал отката транзакции при отклонении
// записи; итог уже записан в result.
var errRejected = errors.New("запись отклонена")

// ReceiveService — приём записей и содержимого файлов от удалённых
// серверов.
type ReceiveService struct {
	txRunner *repository.TxRunner
	journals repository.JournalRepository
	users    repository.UserRepository
	files    repository.EntryFileRepository
	cache    *ResolveCache
	store    *filestore.FileStore
	logger   *slog.Logger
}

// NewReceiveService создаёт сервис приёма.
func NewReceiveService(
	pool *pgxpool.Pool,
	cache *ResolveCache,
	store *filestore.FileStore,
	logger *slog.Logger,
) *ReceiveService {
	return &ReceiveService{
		txRunner: repository.NewTxRunner(pool),
		journals: repository.NewJournalRepository(pool),
		users:    repository.NewUserRepository(pool),
		files:    repository.NewEntryFileRepository(pool),
		cache:    cache,
		store:    store,
		logger:   logger.With(slog.String("component", "receive")),
	}
}

// ReceiveEntry принимает запись от удалённого сервера и приводит
// локальное состояние к присланному: upsert записи и полная
// diff-замена тегов, значений полей и файлов в одной транзакции.
func (s *ReceiveService) ReceiveEntry(ctx context.Context, payload *wire.EntrySyncPayload) (*ReceiveResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	journal, ok := s.cache.GetJournal(payload.JournalUID)
	if !ok {
		var err error
		journal, err = s.journals.GetByUID(ctx, payload.JournalUID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return s.rejected(&ReceiveResult{Outcome: ReceiveOutcomeJournalNotFound}), nil
			}
			return nil, fmt.Errorf("разрешение журнала: %w", err)
		}
		s.cache.SetJournal(journal)
	}

	user, ok := s.cache.GetUser(payload.UserUID)
	if !ok {
		var err error
		user, err = s.users.GetByUID(ctx, payload.UserUID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return s.rejected(&ReceiveResult{Outcome: ReceiveOutcomeUserNotFound}), nil
			}
			return nil, fmt.Errorf("разрешение пользователя: %w", err)
		}
		s.cache.SetUser(user)
	}

	entryDate, err := time.Parse(wire.DateLayout, payload.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: дата записи: %w", ErrValidation, err)
	}

	result := &ReceiveResult{Outcome: ReceiveOutcomeSynced}
	fileOps := filestore.NewTxOps(s.store, s.logger)

	err = s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		entry := &model.Entry{
			UID:       payload.UID,
			JournalID: journal.ID,
			UserID:    user.ID,
			EntryDate: entryDate,
			Title:     payload.Title,
			Contents:  payload.Contents,
			CreatedAt: payload.CreatedAt,
			UpdatedAt: payload.UpdatedAt,
		}
		if err := repository.NewEntryRepository(tx).UpsertByUID(ctx, entry); err != nil {
			return err
		}

		if err := s.reconcileTags(ctx, tx, entry, payload.Tags); err != nil {
			return err
		}
		if err := s.reconcileCustomFields(ctx, tx, journal, entry, payload.CustomFields, result); err != nil {
			return err
		}
		if err := s.reconcileFiles(ctx, tx, entry, payload.Files, fileOps, result); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		fileOps.Rollback()
		if errors.Is(err, errRejected) {
			return s.rejected(result), nil
		}
		return nil, fmt.Errorf("выверка записи %s: %w", payload.UID, err)
	}

	fileOps.Commit()
	receiveEntriesTotal.WithLabelValues(result.Outcome.metricLabel()).Inc()

	s.logger.Info("Запись принята",
		slog.String("entry_uid", payload.UID),
		slog.String("journal_uid", payload.JournalUID),
		slog.Int("tags", len(payload.Tags)),
		slog.Int("custom_fields", len(payload.CustomFields)),
		slog.Int("files", len(payload.Files)),
	)
	return result, nil
}

// rejected учитывает отклонённую запись в метриках.
func (s *ReceiveService) rejected(result *ReceiveResult) *ReceiveResult {
	receiveEntriesTotal.WithLabelValues(result.Outcome.metricLabel()).Inc()
	return result
}

// reconcileTags — diff-замена тегов записи.
func (s *ReceiveService) reconcileTags(ctx context.Context, tx pgx.Tx, entry *model.Entry, incoming []wire.EntryTagSync) error {
	repo := repository.NewEntryTagRepository(tx)

	keys := make([]string, 0, len(incoming))
	tags := make([]*model.EntryTag, 0, len(incoming))
	for _, t := range incoming {
		keys = append(keys, t.Key)
		tags = append(tags, &model.EntryTag{
			EntryID:   entry.ID,
			Key:       t.Key,
			Value:     t.Value,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	}

	if err := repo.BulkUpsert(ctx, tags); err != nil {
		return fmt.Errorf("upsert тегов: %w", err)
	}
	if _, err := repo.DeleteKeysNotIn(ctx, entry.ID, keys); err != nil {
		return fmt.Errorf("удаление лишних тегов: %w", err)
	}
	return nil
}

// reconcileCustomFields — diff-замена значений пользовательских
// полей. Неизвестное поле или невалидное значение отклоняет запись
// целиком, частичного применения нет.
func (s *ReceiveService) reconcileCustomFields(
	ctx context.Context,
	tx pgx.Tx,
	journal *model.Journal,
	entry *model.Entry,
	incoming []wire.EntryCustomFieldSync,
	result *ReceiveResult,
) error {
	repo := repository.NewCustomFieldRepository(tx)

	uids := make([]string, 0, len(incoming))
	for _, cf := range incoming {
		uids = append(uids, cf.CustomFieldUID)
	}

	fields, err := repo.ResolveFieldsByUID(ctx, journal.ID, uids)
	if err != nil {
		return fmt.Errorf("разрешение полей: %w", err)
	}

	var missing []string
	for _, uid := range uids {
		if _, ok := fields[uid]; !ok {
			missing = append(missing, uid)
		}
	}
	if len(missing) > 0 {
		result.Outcome = ReceiveOutcomeCustomFieldNotFound
		result.UIDs = missing
		return errRejected
	}

	values := make([]*model.CustomFieldEntry, 0, len(incoming))
	fieldIDs := make([]int64, 0, len(incoming))
	var invalid []string
	for _, cf := range incoming {
		field := fields[cf.CustomFieldUID]

		value, err := wireValueToModel(cf)
		if err == nil {
			err = field.ValidateValue(value)
		}
		if err != nil {
			s.logger.Debug("Значение поля отклонено",
				slog.String("field_uid", cf.CustomFieldUID),
				slog.String("error", err.Error()),
			)
			invalid = append(invalid, cf.CustomFieldUID)
			continue
		}

		values = append(values, &model.CustomFieldEntry{
			EntryID:       entry.ID,
			CustomFieldID: field.ID,
			Value:         value,
			CreatedAt:     cf.CreatedAt,
			UpdatedAt:     cf.UpdatedAt,
		})
		fieldIDs = append(fieldIDs, field.ID)
	}
	if len(invalid) > 0 {
		result.Outcome = ReceiveOutcomeCustomFieldInvalid
		result.UIDs = invalid
		return errRejected
	}

	if err := repo.BulkUpsertValues(ctx, values); err != nil {
		return fmt.Errorf("upsert значений полей: %w", err)
	}
	if _, err := repo.DeleteValuesNotIn(ctx, entry.ID, fieldIDs); err != nil {
		return fmt.Errorf("удаление лишних значений полей: %w", err)
	}
	return nil
}

// reconcileFiles — diff-замена файлов записи. Новые файлы создаются
// в состоянии requested, содержимое приходит отдельным запросом.
// Содержимое удалённых файлов стирается с диска после коммита.
func (s *ReceiveService) reconcileFiles(
	ctx context.Context,
	tx pgx.Tx,
	entry *model.Entry,
	incoming []wire.EntryFileSync,
	fileOps *filestore.TxOps,
	result *ReceiveResult,
) error {
	repo := repository.NewEntryFileRepository(tx)

	var conflicts []string
	uids := make([]string, 0, len(incoming))
	for _, f := range incoming {
		uids = append(uids, f.UID)

		existing, err := repo.GetByUID(ctx, f.UID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Новый файл: метаданные сейчас, содержимое — отдельным
			// PUT от сервера-источника
			if err := repo.Create(ctx, &model.EntryFile{
				UID:         f.UID,
				EntryID:     entry.ID,
				Name:        f.Name,
				MimeType:    f.MimeType,
				MimeSubtype: f.MimeSubtype,
				MimeParam:   f.MimeParam,
				Size:        f.Size,
				Status:      model.FileStatusRequested,
			}); err != nil {
				return fmt.Errorf("создание файла %s: %w", f.UID, err)
			}
			continue
		case err != nil:
			return fmt.Errorf("поиск файла %s: %w", f.UID, err)
		}

		if existing.EntryID != entry.ID {
			conflicts = append(conflicts, f.UID)
			continue
		}
		// Файл той же записи: обновляем метаданные. requested-файл —
		// штатное состояние (содержимое ещё не догнало метаданные),
		// повторная доставка записи не должна его ломать
		existing.Name = f.Name
		existing.MimeType = f.MimeType
		existing.MimeSubtype = f.MimeSubtype
		existing.MimeParam = f.MimeParam
		existing.Size = f.Size
		existing.CreatedAt = f.CreatedAt
		existing.UpdatedAt = f.UpdatedAt
		if err := repo.UpsertByUID(ctx, existing); err != nil {
			return fmt.Errorf("обновление файла %s: %w", f.UID, err)
		}
	}
	if len(conflicts) > 0 {
		result.Outcome = ReceiveOutcomeFileNotFound
		result.UIDs = conflicts
		return errRejected
	}

	removedPaths, err := repo.DeleteNotIn(ctx, entry.ID, uids)
	if err != nil {
		return fmt.Errorf("удаление лишних файлов: %w", err)
	}
	fileOps.MarkRemoval(removedPaths...)
	return nil
}

// wireValueToModel преобразует wire-вариант значения в доменный.
func wireValueToModel(cf wire.EntryCustomFieldSync) (model.CustomFieldValue, error) {
	v := model.CustomFieldValue{
		Text:    cf.TextValue,
		Number:  cf.NumberValue,
		Boolean: cf.BooleanValue,
	}
	if cf.DateValue != nil {
		d, err := time.Parse(wire.DateLayout, *cf.DateValue)
		if err != nil {
			return v, fmt.Errorf("дата значения поля: %w", err)
		}
		v.Date = &d
	}
	return v, nil
}

// ReceiveFileContent принимает содержимое файлового вложения,
// объявленного ранее в составе записи, и переводит файл в received.
// Повторная загрузка перезаписывает содержимое.
func (s *ReceiveService) ReceiveFileContent(ctx context.Context, fileUID string, content io.Reader) (*model.EntryFile, error) {
	existing, err := s.files.GetByUID(ctx, fileUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: файл %s", ErrNotFound, fileUID)
		}
		return nil, fmt.Errorf("поиск файла %s: %w", fileUID, err)
	}

	saved, err := s.store.SaveFile(content, fileUID)
	if err != nil {
		return nil, fmt.Errorf("сохранение содержимого %s: %w", fileUID, err)
	}

	// Запись на диск откатывается, только если файл ещё не был
	// received: повторная загрузка уже заменила старое содержимое
	fileOps := filestore.NewTxOps(s.store, s.logger)
	if !existing.IsReceived() {
		fileOps.TrackCreated(saved.StoragePath)
	}

	if err := s.files.MarkReceived(ctx, fileUID, saved.StoragePath, saved.Size, time.Now().UTC()); err != nil {
		fileOps.Rollback()
		return nil, fmt.Errorf("перевод файла %s в received: %w", fileUID, err)
	}
	fileOps.Commit()

	updated, err := s.files.GetByUID(ctx, fileUID)
	if err != nil {
		return nil, fmt.Errorf("чтение файла %s после загрузки: %w", fileUID, err)
	}

	s.logger.Info("Содержимое файла получено",
		slog.String("file_uid", fileUID),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
	)
	return updated, nil
}
