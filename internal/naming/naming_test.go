package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToGraphQLTypeName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"Post", "Post"},
		{"blog_post", "BlogPost"},
		{"post_tag", "PostTag"},
		{"a", "A"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ToGraphQLTypeName(tt.input))
		})
	}
}

func TestToGraphQLFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ToGraphQLFieldName(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"Post", "Posts"},
		{"Category", "Categories"},
		{"person", "people"},
		{"status", "statuses"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	assert.Equal(t, "Comment", namer.Singularize("Comments"))
	assert.Equal(t, "person", namer.Singularize("people"))
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides:   map[string]string{"Staff": "Staff"},
		SingularOverrides: map[string]string{"Data": "Datum"},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "Staff", namer.Pluralize("Staff"))
	assert.Equal(t, "Users", namer.Pluralize("User"))
	assert.Equal(t, "Datum", namer.Singularize("Data"))
}

func TestAssociationSuffix(t *testing.T) {
	tests := []struct {
		name     string
		alias    string
		list     bool
		frozen   bool
		expected string
	}{
		{name: "list uses plural", list: true, expected: "Comments"},
		{name: "single uses singular", expected: "Comment"},
		{name: "frozen list keeps singular", list: true, frozen: true, expected: "Comment"},
		{name: "alias wins", alias: "replies", list: true, expected: "Replies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AssociationSuffix(tt.alias, "Comment", "Comments", tt.list, tt.frozen))
		})
	}
}

func TestImplicitAssociationName(t *testing.T) {
	assert.Equal(t, "author", ImplicitAssociationName("authorId"))
	assert.Equal(t, "author", ImplicitAssociationName("author_id"))
	assert.Equal(t, "createdBy", ImplicitAssociationName("created_by_id"))
	assert.Equal(t, "owner", ImplicitAssociationName("owner"))
	assert.Equal(t, "id", ImplicitAssociationName("Id"))
}

func TestGeneratedTypeNames(t *testing.T) {
	assert.Equal(t, "PostAddInput", InputTypeName("Post", false, false))
	assert.Equal(t, "PostEditInput", InputTypeName("Post", true, false))
	assert.Equal(t, "PostTagAddInputConnection", InputTypeName("PostTag", false, true))
	assert.Equal(t, "PostCommentsConnection", ConnectionTypeName("Post", "comments"))
	assert.Equal(t, "PostCommentsEdge", EdgeTypeName("Post", "comments"))
	assert.Equal(t, "PostSubscriptionOutput", SubscriptionOutputName("Post"))
}

func TestRootFieldName(t *testing.T) {
	assert.Equal(t, "postGet", RootFieldName("Post", "Get", ""))
	assert.Equal(t, "blogPostAdd", RootFieldName("blog_post", "Add", ""))
	assert.Equal(t, "allPosts", RootFieldName("Post", "Get", "all_posts"))
	assert.Equal(t, "publishPost", RootFieldName("Post", "Add", "publishPost"))
}

func TestReservedWordSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	tests := []struct {
		input    string
		expected string
	}{
		{"query", "Query_"},
		{"Query", "Query_"},
		{"json", "Json_"},
		{"type", "Type_"},
		{"users", "Users"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			namer.Reset()
			assert.Equal(t, tt.expected, namer.ToGraphQLTypeName(tt.input))
		})
	}
	assert.Contains(t, buf.String(), "reserved word")
}

func TestMetaFieldIsReserved(t *testing.T) {
	namer := Default()
	assert.Equal(t, MetaFieldName+"_", namer.FieldName(MetaFieldName))
	assert.Equal(t, "title", namer.FieldName("title"))
}

func TestCollision_TypeToType(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "UserProfile", namer.RegisterType("user_profile"))
	assert.Equal(t, "UserProfile2", namer.RegisterType("UserProfile"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestCollision_FieldToField(t *testing.T) {
	namer := Default()

	assert.Equal(t, "author", namer.RegisterField("Post", "author", "field:author"))
	assert.Equal(t, "author2", namer.RegisterField("Post", "author", "association:author"))
	assert.True(t, namer.resolver.FieldExists("Post", "author2"))
	assert.False(t, namer.resolver.FieldExists("Comment", "author"))
}

func TestCollision_RootField(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "postGet", namer.RegisterRootField(RootQuery, "postGet", "Post"))
	// Same name on a different root does not collide.
	assert.Equal(t, "postGet", namer.RegisterRootField(RootMutation, "postGet", "Post"))
	assert.Equal(t, "postGet2", namer.RegisterRootField(RootQuery, "postGet", "post"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestReset(t *testing.T) {
	namer := Default()
	namer.RegisterType("users")
	namer.Reset()
	assert.Equal(t, "Users", namer.RegisterType("users"))
}
