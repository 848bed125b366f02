package sqlstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-graphql/internal/dbexec"
	"entity-graphql/internal/entity"
	"entity-graphql/internal/store"
)

var (
	authorD = &entity.Descriptor{Name: "Author", Table: "authors", Fields: []entity.Field{
		{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
		{Name: "name"},
	}}
	postD = &entity.Descriptor{Name: "Post", Table: "posts", Paranoid: true, Fields: []entity.Field{
		{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
		{Name: "title"},
		{Name: "authorId", Column: "author_id", Type: "int"},
		{Name: "deletedAt", Column: "deleted_at", Type: "date"},
	}}
	tagD = &entity.Descriptor{Name: "Tag", Table: "tags", Fields: []entity.Field{
		{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
		{Name: "label"},
	}}
	postTagD = &entity.Descriptor{Name: "PostTag", Table: "post_tags", Fields: []entity.Field{
		{Name: "postId", Column: "post_id", Type: "int", PrimaryKey: true},
		{Name: "tagId", Column: "tag_id", Type: "int", PrimaryKey: true},
		{Name: "role"},
	}}

	authorPosts = store.Accessor{
		Association: entity.Association{Name: "posts", Kind: entity.ToMany, Target: "Post", ForeignKey: "authorId"},
		Suffix:      "Posts", Source: authorD, Target: postD,
	}
	postTags = store.Accessor{
		Association: entity.Association{Name: "tags", Kind: entity.ToManyThrough, Target: "Tag", Through: "PostTag", ForeignKey: "postId", OtherKey: "tagId"},
		Suffix:      "Tags", Source: postD, Target: tagD, Through: postTagD,
	}
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(dbexec.NewStandardExecutor(db), WithClock(fixedClock)), mock
}

func TestFindBuildsFilteredQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `t`.`id`, `t`.`title`, `t`.`author_id`, `t`.`deleted_at` FROM `posts` AS `t` WHERE `t`.`title` = ? AND `t`.`deleted_at` IS NULL ORDER BY `t`.`id` DESC LIMIT 2 OFFSET 1")).
		WithArgs("hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author_id", "deleted_at"}).
			AddRow(int64(3), []byte("hello"), int64(1), nil))

	rows, err := s.Find(context.Background(), postD, store.FindOptions{
		Where:    store.Filter{"title": "hello"},
		Order:    []store.Order{{Field: "id", Desc: true}},
		Limit:    2,
		Offset:   1,
		Paranoid: true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entity.Record{"id": 3, "title": "hello", "authorId": 1, "deletedAt": nil}, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRejectsUnknownFields(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.Find(context.Background(), postD, store.FindOptions{Where: store.Filter{"nope": 1}})
	assert.ErrorContains(t, err, "unknown filter field nope on Post")

	_, err = s.Find(context.Background(), postD, store.FindOptions{Order: []store.Order{{Field: "nope"}}})
	assert.ErrorContains(t, err, "unknown order field nope on Post")
}

func TestCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `authors` AS `t` WHERE `t`.`id` IN (?,?)")).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.Count(context.Background(), authorD, store.FindOptions{
		Where: store.Filter{"id": []interface{}{1, 2}},
		Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReadsBackGeneratedKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `authors` (`name`) VALUES (?)")).
		WithArgs("ada").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `authors` AS `t` WHERE `t`.`id` = ? LIMIT 1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "ada"))

	rec, err := s.Create(context.Background(), authorD, entity.Record{"name": "ada", "posts": []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, entity.Record{"id": 7, "name": "ada"}, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreateDerivesKeysFromFirstInsertID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `authors` (`name`) VALUES (?),(?)")).
		WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(10, 2))

	recs, err := s.BulkCreate(context.Background(), authorD, []entity.Record{{"name": "a"}, {"name": "b"}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 10, recs[0]["id"])
	assert.Equal(t, 11, recs[1]["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSkipsSoftDeletedRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `posts` SET `title` = ? WHERE `id` = ? AND `deleted_at` IS NULL")).
		WithArgs("new", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.Update(context.Background(), postD, entity.Record{"title": "new"}, store.Filter{"id": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDestroy(t *testing.T) {
	t.Run("paranoid entity is soft deleted", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `posts` SET `deleted_at` = ? WHERE `deleted_at` IS NULL AND `id` = ?")).
			WithArgs(fixedClock(), 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := s.Destroy(context.Background(), postD, store.Filter{"id": 3})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("plain entity is deleted", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `authors` WHERE `id` = ?")).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := s.Destroy(context.Background(), authorD, store.Filter{"id": 1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRelatedThroughJoinsLinkTable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `t`.`id`, `t`.`label`, `j`.`post_id`, `j`.`tag_id`, `j`.`role` FROM `tags` AS `t` JOIN `post_tags` AS `j` ON `j`.`tag_id` = `t`.`id` WHERE `j`.`post_id` = ? AND `j`.`role` = ?")).
		WithArgs(5, "primary").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "post_id", "tag_id", "role"}).
			AddRow(int64(2), "go", int64(5), int64(2), "primary"))

	rows, err := s.Related(context.Background(), postTags, entity.Record{"id": 5}, store.FindOptions{
		WhereEdges: store.Filter{"role": "primary"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "go", rows[0]["label"])
	assert.Equal(t, entity.Record{"postId": 5, "tagId": 2, "role": "primary"}, rows[0]["PostTag"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelatedWithoutSourceKeySkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	rows, err := s.Related(context.Background(), authorPosts, entity.Record{}, store.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddToManySetsForeignKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `posts` SET `author_id` = ? WHERE `id` = ?")).
		WithArgs(1, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := s.Add(context.Background(), authorPosts, entity.Record{"id": 1}, entity.Record{"id": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rec["authorId"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetThroughReplacesLinks(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `post_tags` WHERE (`post_id` = ? AND `tag_id` NOT IN (?,?))")).
		WithArgs(5, 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `post_tags` AS `t` WHERE (`t`.`post_id` = ? AND `t`.`tag_id` IN (?,?))")).
		WithArgs(5, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "tag_id", "role"}).AddRow(int64(5), int64(1), nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `post_tags` (`post_id`,`tag_id`) VALUES (?,?)")).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `post_tags` AS `t` WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "tag_id", "role"}).AddRow(int64(5), int64(2), nil))

	err := s.Set(context.Background(), postTags, entity.Record{"id": 5}, []entity.Record{{"id": 1}, {"id": 2}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRoutesStatementsThroughTx(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `authors`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	_, isExec := tx.(dbexec.TxExecutor)
	assert.True(t, isExec)

	ctx := store.WithTx(context.Background(), tx)
	_, err = s.Destroy(ctx, authorD, store.Filter{"id": 1})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type queryOnly struct{ dbexec.QueryExecutor }

func TestBeginWithoutBeginner(t *testing.T) {
	s := New(queryOnly{})
	_, err := s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestBuildWhere(t *testing.T) {
	cond, err := buildWhere(postD, "t", store.Filter{
		"or": []interface{}{
			map[string]interface{}{"title": map[string]interface{}{"like": "%go%"}},
			map[string]interface{}{"authorId": nil},
		},
	})
	require.NoError(t, err)
	query, args, err := cond.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`t`.`title` LIKE ? OR `t`.`author_id` IS NULL)", query)
	assert.Equal(t, []interface{}{"%go%"}, args)

	empty, err := buildWhere(postD, "t", nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, _, err = sq.Select("1").Where(cond).ToSql()
	assert.NoError(t, err)
}

