package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/store"
)

const resourceColumns = "id, name, description, status, created_at, updated_at"

// ResourceRepository реализует доступ к таблице resources.
// Все пользовательские значения передаются только как параметры $n
type ResourceRepository struct {
	db *store.DB
}

// NewResourceRepository создаёт новый репозиторий ресурсов
func NewResourceRepository(db *store.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*model.Resource, error) {
	var r model.Resource
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create вставляет ресурс; created_at и updated_at заполняются базой одним значением NOW()
func (r *ResourceRepository) Create(ctx context.Context, p model.CreateParams) (*model.Resource, error) {
	status := p.Status
	if status == "" {
		status = model.StatusActive
	}
	query := `INSERT INTO resources (name, description, status) VALUES ($1, $2, $3)
		RETURNING ` + resourceColumns
	res, err := scanResource(r.db.QueryRowContext(ctx, query, p.Name, p.Description, string(status)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert resource")
	}
	return res, nil
}

// FindByID возвращает ресурс или nil, nil, если записи нет
func (r *ResourceRepository) FindByID(ctx context.Context, id int64) (*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`
	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get resource")
	}
	return res, nil
}

// FindAll возвращает страницу ресурсов (новые первыми) и метаданные пагинации.
// Общее количество считается с теми же условиями, что и выборка
func (r *ResourceRepository) FindAll(ctx context.Context, f model.ListFilters) ([]model.Resource, model.Pagination, error) {
	where, args := buildFilters(f)

	// считаем общее количество с теми же условиями
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`+where, args...).Scan(&total); err != nil {
		return nil, model.Pagination{}, errors.Wrap(err, "failed to count resources")
	}
	pagination := model.NewPagination(f.Page, f.Limit, total)
	resources := make([]model.Resource, 0, min(f.Limit, total))
	// страница за пределами выборки: второй запрос не нужен
	if total == 0 || f.Offset() >= total {
		return resources, pagination, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM resources%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		resourceColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, model.Pagination{}, errors.Wrap(err, "failed to select resources")
	}
	defer rows.Close()
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, model.Pagination{}, errors.Wrap(err, "failed to scan resource")
		}
		resources = append(resources, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Pagination{}, errors.Wrap(err, "failed to iterate resources")
	}
	return resources, pagination, nil
}

// Update меняет только переданные поля одним оператором и всегда обновляет updated_at.
// Возвращает nil, nil, если записи нет
func (r *ResourceRepository) Update(ctx context.Context, id int64, u model.UpdateFields) (*model.Resource, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	// updated_at сдвигается даже при пустом обновлении
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE resources SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), resourceColumns)
	res, err := scanResource(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to update resource")
	}
	return res, nil
}

// Delete удаляет запись и возвращает её последнее состояние.
// Возвращает nil, nil, если записи нет
func (r *ResourceRepository) Delete(ctx context.Context, id int64) (*model.Resource, error) {
	query := `DELETE FROM resources WHERE id = $1 RETURNING ` + resourceColumns
	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to delete resource")
	}
	return res, nil
}

// buildFilters собирает WHERE для статуса и поиска; условия объединяются через AND
func buildFilters(f model.ListFilters) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike экранирует метасимволы LIKE, чтобы поиск был буквальным
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
