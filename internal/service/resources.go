package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/metrics"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/validation"
	"ResourceAPI/pkg/cache"
)

// Repo определяет хранилище ресурсов (PostgreSQL).
// FindByID, Update и Delete возвращают nil, nil, если записи нет
type Repo interface {
	Create(ctx context.Context, p model.CreateParams) (*model.Resource, error)
	FindByID(ctx context.Context, id int64) (*model.Resource, error)
	FindAll(ctx context.Context, f model.ListFilters) ([]model.Resource, model.Pagination, error)
	Update(ctx context.Context, id int64, u model.UpdateFields) (*model.Resource, error)
	Delete(ctx context.Context, id int64) (*model.Resource, error)
}

// Cache определяет read-through кеш (Redis)
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Incr(ctx context.Context, key string) (int64, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Publisher отправляет события изменения ресурсов (NATS)
type Publisher interface {
	Publish(e model.ResourceEvent) error
}

// DefaultCacheTTL задаёт время жизни записей кеша, если не задано иное
const DefaultCacheTTL = time.Minute

const listGenerationKey = "resources:list:gen"

// itemKey включает поколение записи. Изменение увеличивает его после записи в базу,
// поэтому значение, прочитанное до изменения, попадает под ключ, который больше не читается
func itemKey(id int64, gen string) string {
	return fmt.Sprintf("resource:%d:%s", id, gen)
}

func itemGenerationKey(id int64) string {
	return fmt.Sprintf("resource:%d:gen", id)
}

// listKey включает поколение списков: любая мутация увеличивает его, и старые страницы
// перестают читаться без перебора ключей
func listKey(gen string, f model.ListFilters) string {
	return fmt.Sprintf("resources:list:%s:%s:%s:%d:%d", gen, f.Status, f.Search, f.Page, f.Limit)
}

type listPage struct {
	Items      []model.Resource `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

// ResourceService реализует бизнес-логику ресурсов: валидация, обращение к репозиторию,
// кеширование и публикация событий. Сбои кеша и брокера только логируются
type ResourceService struct {
	repo      Repo
	cache     Cache
	publisher Publisher
	log       logrus.FieldLogger
	ttl       time.Duration
	now       func() time.Time
}

// NewResourceService создаёт сервис ресурсов
func NewResourceService(repo Repo, c Cache, p Publisher, log logrus.FieldLogger) *ResourceService {
	return &ResourceService{
		repo:      repo,
		cache:     c,
		publisher: p,
		log:       log,
		ttl:       DefaultCacheTTL,
		now:       time.Now,
	}
}

// WithCacheTTL задаёт время жизни записей кеша
func (s *ResourceService) WithCacheTTL(ttl time.Duration) *ResourceService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Create валидирует данные и создаёт ресурс
func (s *ResourceService) Create(ctx context.Context, in model.ResourceInput) (res *model.Resource, err error) {
	defer func() { observe("create", err) }()

	if vs := validation.ValidateCreate(in); len(vs) > 0 {
		return nil, ValidationError(validation.First(vs))
	}
	// в базу попадают значения без пробелов по краям
	params := model.CreateParams{
		Name:        strings.TrimSpace(*in.Name),
		Description: strings.TrimSpace(*in.Description),
	}
	if in.Status != nil {
		params.Status = model.Status(*in.Status)
	}
	res, err = s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	s.bumpListGeneration(ctx)
	s.publish(model.ActionCreated, *res)
	return res, nil
}

// FindByID возвращает ресурс или NotFound
func (s *ResourceService) FindByID(ctx context.Context, id int64) (res *model.Resource, err error) {
	defer func() { observe("get", err) }()

	// поколение читается до обращения к базе
	key := itemKey(id, s.generation(ctx, itemGenerationKey(id)))
	var cached model.Resource
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}
	res, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, resourceNotFound(id)
	}
	s.cacheSet(ctx, key, res)
	return res, nil
}

// FindAll возвращает страницу ресурсов. Параметры проверяются до обращения к кешу и хранилищу
func (s *ResourceService) FindAll(ctx context.Context, f model.ListFilters) (items []model.Resource, p model.Pagination, err error) {
	defer func() { observe("list", err) }()

	f.Search = strings.TrimSpace(f.Search)
	if vs := validation.ValidateListFilters(f); len(vs) > 0 {
		return nil, model.Pagination{}, ValidationError(validation.First(vs))
	}

	// сначала пробуем кеш текущего поколения
	key := listKey(s.generation(ctx, listGenerationKey), f)
	var cached listPage
	if s.cacheGet(ctx, key, &cached) && cached.Items != nil {
		return cached.Items, cached.Pagination, nil
	}
	items, p, err = s.repo.FindAll(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	s.cacheSet(ctx, key, listPage{Items: items, Pagination: p})
	return items, p, nil
}

// Update применяет частичное обновление. Пустое обновление допустимо и сдвигает updatedAt
func (s *ResourceService) Update(ctx context.Context, id int64, in model.ResourceInput) (res *model.Resource, err error) {
	defer func() { observe("update", err) }()

	if vs := validation.ValidateUpdate(in); len(vs) > 0 {
		return nil, ValidationError(validation.First(vs))
	}
	var fields model.UpdateFields
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		fields.Name = &name
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		fields.Description = &desc
	}
	if in.Status != nil {
		status := model.Status(*in.Status)
		fields.Status = &status
	}
	res, err = s.repo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, resourceNotFound(id)
	}
	// кеш сбрасывается только после записи в базу
	s.invalidateItem(ctx, id)
	s.bumpListGeneration(ctx)
	s.publish(model.ActionUpdated, *res)
	return res, nil
}

// Delete удаляет ресурс; повторное удаление возвращает NotFound
func (s *ResourceService) Delete(ctx context.Context, id int64) (err error) {
	defer func() { observe("delete", err) }()

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted == nil {
		return resourceNotFound(id)
	}
	s.invalidateItem(ctx, id)
	s.bumpListGeneration(ctx)
	// в событие уходит последнее состояние записи
	s.publish(model.ActionDeleted, *deleted)
	return nil
}

func (s *ResourceService) cacheGet(ctx context.Context, key string, dst any) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		metrics.CacheLookups.WithLabelValues(metrics.ResultMiss).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache entry is corrupt")
		metrics.CacheLookups.WithLabelValues(metrics.ResultMiss).Inc()
		return false
	}
	metrics.CacheLookups.WithLabelValues(metrics.ResultHit).Inc()
	return true
}

func (s *ResourceService) cacheSet(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// invalidateItem увеличивает поколение записи и удаляет значение предыдущего поколения
func (s *ResourceService) invalidateItem(ctx context.Context, id int64) {
	gen, err := s.cache.Incr(ctx, itemGenerationKey(id))
	if err != nil {
		s.log.WithError(err).WithField("resource_id", id).Warn("cache invalidation failed")
		return
	}
	if err := s.cache.Invalidate(ctx, itemKey(id, strconv.FormatInt(gen-1, 10))); err != nil {
		s.log.WithError(err).WithField("resource_id", id).Warn("cache invalidation failed")
	}
}

// generation возвращает текущее поколение ключей; отсутствие или сбой кеша дают "0"
func (s *ResourceService) generation(ctx context.Context, key string) string {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return "0"
	}
	return string(data)
}

func (s *ResourceService) bumpListGeneration(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, listGenerationKey); err != nil {
		s.log.WithError(err).Warn("list cache invalidation failed")
	}
}

func (s *ResourceService) publish(action model.EventAction, r model.Resource) {
	err := s.publisher.Publish(model.ResourceEvent{Action: action, Resource: r, OccurredAt: s.now()})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"action": action, "resource_id": r.ID}).Warn("event publish failed")
	}
}

func observe(op string, err error) {
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		if e, ok := AsError(err); ok {
			result = string(e.Kind)
		}
	}
	metrics.Operations.WithLabelValues(op, result).Inc()
}
