package blog

import (
	"context"

	"github.com/aidanlsb/relq/internal/model"
	"github.com/aidanlsb/relq/internal/orm"
	"github.com/aidanlsb/relq/internal/query"
)

// PostsWithTagCount selects the id and title of posts with more than
// minTags tags, with their tag count.
func PostsWithTagCount(minTags int) *query.Query {
	return query.From(Post).
		Select("id", "title").
		WithCount("tags").
		Where(query.Has("tags", ">", minTags))
}

// PostsThisMonth selects posts created this month after the first day,
// narrowed to one slug when slug is not empty. month is 1-12.
func PostsThisMonth(month int, slug string) *query.Query {
	return query.From(Post).Where(
		query.WhereMonth("created_at", "=", month),
		query.WhereDay("created_at", ">", 1),
		query.WhenValue(slug, func(s string) query.Predicate { return query.Eq("slug", s) }),
	)
}

// BannedOrYoung selects banned users aged at least minBannedAge, plus
// active users aged at most maxActiveAge.
func BannedOrYoung(minBannedAge, maxActiveAge int) *query.Query {
	return query.From(User).
		Where(query.And(query.Eq("banned", true), query.Where("age", ">=", minBannedAge))).
		OrWhere(query.And(query.Eq("banned", false), query.Where("age", "<=", maxActiveAge)))
}

// lastPost is the newest post of the enclosing user, ignoring the month
// scope.
func lastPost(column string) *query.Subquery {
	return query.Latest(Post, column, "user_id", "users.id", "created_at").WithoutScope(ScopeCurrentMonth)
}

// UsersByLastPost selects users that have posts, newest author first. With
// withTitle the title of each user's last post is selected as last_post.
func UsersByLastPost(withTitle bool) *query.Query {
	q := query.From(User).
		Select("id", "name").
		Where(query.WhereHas("posts")).
		OrderBySub(lastPost("created_at"), true)
	if withTitle {
		q.AddSelectSub("last_post", lastPost("title"))
	}
	return q
}

// CategoryTotals groups posts of every month by category with the sum of
// likes and dislikes, keeping categories with more than minLikes likes when
// minLikes is positive.
func CategoryTotals(minLikes int) *query.Aggregate {
	a := query.GroupQuery(Post).
		WithoutScope(ScopeCurrentMonth).
		Select("category_id").
		Sum("likes", "total_likes").
		Sum("dislikes", "total_dislikes").
		GroupBy("category_id")
	if minLikes > 0 {
		a.Having(query.HavingAgg(query.Agg(query.Sum, "likes"), ">", minLikes))
	}
	return a
}

// EnsureUserWithBilling finds the user named name, creating it from attrs
// when missing, then creates or updates the user's billing record with
// card. Both writes share one transaction. The user is returned with its
// billing loaded.
func EnsureUserWithBilling(ctx context.Context, db *orm.DB, name string, attrs orm.Attrs, card string) (*model.Record, error) {
	var user *model.Record
	err := db.Transaction(ctx, func(tx *orm.DB) error {
		u, _, err := tx.FirstOrCreate(ctx, User, orm.Attrs{"name": name}, attrs)
		if err != nil {
			return err
		}
		if _, _, err := tx.UpdateOrCreate(ctx, Billing,
			orm.Attrs{"user_id": u.Key()},
			orm.Attrs{"credit_card_number": card},
		); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := db.Load(ctx, []*model.Record{user}, "billing:id,user_id,credit_card_number"); err != nil {
		return nil, err
	}
	return user, nil
}
