package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleContext(t *testing.T, d Dialect, token, input string) RuleContext {
	t.Helper()
	op, err := ResolveOperator(token, input, "alice", d)
	require.NoError(t, err)
	return RuleContext{Op: op, Dialect: d, Table: "*PREFIX*music_tracks", NameColumn: "title", UserID: "alice"}
}

// Every rule must bind exactly as many parameters as it has placeholders, with
// whichever operator kind it accepts.
func TestTrackRulesArityMatchesPlaceholders(t *testing.T) {
	rules := TrackRules()
	candidates := [][2]string{{"contain", "x"}, {"equal", "x"}, {"true", ""}, {"limit", "5"}}

	for _, d := range []Dialect{MySQL, PostgreSQL} {
		for _, name := range rules.Names() {
			var frag Fragment
			var err error
			for _, c := range candidates {
				frag, err = rules.Condition(name, ruleContext(t, d, c[0], c[1]))
				if !errors.Is(err, ErrInvalidOperator) {
					break
				}
			}
			require.NoError(t, err, "rule %s (%s)", name, d.Name)
			assert.Equal(t, strings.Count(frag.SQL, "?"), frag.Arity, "rule %s (%s): %s", name, d.Name, frag.SQL)
		}
	}
}

func TestTrackRulesUnknownRule(t *testing.T) {
	_, err := TrackRules().Condition("shoe_size", ruleContext(t, MySQL, "equal", "9"))
	assert.ErrorIs(t, err, ErrUnsupportedRule)
}

func TestTrackRulesRejectWrongOperatorKind(t *testing.T) {
	rules := TrackRules()

	_, err := rules.Condition("myplayed", ruleContext(t, MySQL, "contain", "x"))
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = rules.Condition("artist", ruleContext(t, MySQL, "true", ""))
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = rules.Condition("recent_played", ruleContext(t, MySQL, "equal", "3"))
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = rules.Condition("playlist", ruleContext(t, MySQL, "contain", "3"))
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestAnywhereRule(t *testing.T) {
	rules := TrackRules()

	frag, err := rules.Condition("anywhere", ruleContext(t, MySQL, "contain", "love"))
	require.NoError(t, err)
	assert.Equal(t, 5, frag.Arity)
	assert.Equal(t, 4, strings.Count(frag.SQL, " OR "))
	assert.Contains(t, frag.SQL, "LOWER(COALESCE(genre.name, '')) LIKE LOWER(?)")

	frag, err = rules.Condition("anywhere", ruleContext(t, MySQL, "notcontain", "love"))
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(frag.SQL, " AND "))
	assert.NotContains(t, frag.SQL, " OR ")
}

func TestRecentPlayedRule(t *testing.T) {
	rules := TrackRules()

	frag, err := rules.Condition("recent_played", ruleContext(t, MySQL, "limit", "20"))
	require.NoError(t, err)
	assert.Equal(t, "*PREFIX*music_tracks.id IN (SELECT * FROM (SELECT id FROM *PREFIX*music_tracks"+
		" WHERE user_id = ? AND last_played IS NOT NULL ORDER BY last_played DESC LIMIT 20) mysqlhack)", frag.SQL)

	frag, err = rules.Condition("recent_played", ruleContext(t, PostgreSQL, "limit", "20"))
	require.NoError(t, err)
	assert.NotContains(t, frag.SQL, "mysqlhack")
	assert.Contains(t, frag.SQL, "LIMIT 20)")
}

func TestGroupedRulesUseDialect(t *testing.T) {
	rules := TrackRules()

	frag, err := rules.Condition("album_genre", ruleContext(t, MySQL, "contain", "rock"))
	require.NoError(t, err)
	assert.Contains(t, frag.SQL, "HAVING LOWER(GROUP_CONCAT(g.name)) LIKE LOWER(?)")
	assert.Contains(t, frag.SQL, "mysqlhack")

	frag, err = rules.Condition("artist_genre", ruleContext(t, PostgreSQL, "contain", "rock"))
	require.NoError(t, err)
	assert.Contains(t, frag.SQL, "HAVING LOWER(string_agg(g.name, ',')) LIKE LOWER(?)")

	frag, err = rules.Condition("playedalbum", ruleContext(t, PostgreSQL, "false", ""))
	require.NoError(t, err)
	assert.Contains(t, frag.SQL, "WHERE user_id = ? GROUP BY album_id HAVING MAX(last_played) IS NULL")
}

func TestGroupedRulesOnlySeeCallersTracks(t *testing.T) {
	rules := TrackRules()

	c := ruleContext(t, MySQL, "true", "")
	frag, err := rules.Condition("myplayedartist", c)
	require.NoError(t, err)
	assert.Equal(t, "*PREFIX*music_tracks.artist_id IN (SELECT * FROM (SELECT artist_id FROM *PREFIX*music_tracks"+
		" WHERE user_id = ? GROUP BY artist_id HAVING MAX(last_played) IS NOT NULL) mysqlhack)", frag.SQL)
	assert.Equal(t, []interface{}{"alice"}, frag.Bind(c))

	c = ruleContext(t, PostgreSQL, "contain", "rock")
	frag, err = rules.Condition("album_genre", c)
	require.NoError(t, err)
	assert.Contains(t, frag.SQL, "JOIN *PREFIX*music_genres g ON t.genre_id = g.id WHERE t.user_id = ? GROUP BY t.album_id")
	assert.Equal(t, []interface{}{"alice", "%rock%"}, frag.Bind(c))
}

func TestNoGenreRule(t *testing.T) {
	rules := TrackRules()

	frag, err := rules.Condition("no_genre", ruleContext(t, MySQL, "true", ""))
	require.NoError(t, err)
	assert.Equal(t, "COALESCE(genre.name, '') = ''", frag.SQL)

	frag, err = rules.Condition("no_genre", ruleContext(t, MySQL, "false", ""))
	require.NoError(t, err)
	assert.Equal(t, "COALESCE(genre.name, '') != ''", frag.SQL)
}

func TestPlaylistRule(t *testing.T) {
	rules := TrackRules()

	frag, err := rules.Condition("playlist", ruleContext(t, PostgreSQL, "ne", "4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(frag.SQL, "NOT EXISTS ("))
	assert.Contains(t, frag.SQL, "p.user_id = *PREFIX*music_tracks.user_id")
	assert.Contains(t, frag.SQL, "LIKE '%|' || *PREFIX*music_tracks.id || '|%'")

	frag, err = rules.Condition("playlist_name", ruleContext(t, MySQL, "start", "Road"))
	require.NoError(t, err)
	assert.Contains(t, frag.SQL, "LOWER(p.name) LIKE LOWER(?)")
	assert.Contains(t, frag.SQL, "CONCAT('%|', *PREFIX*music_tracks.id, '|%')")
}

func TestAliasesResolveThroughFallback(t *testing.T) {
	rules := TrackRules()

	song, err := rules.Condition("song", ruleContext(t, MySQL, "equal", "Help"))
	require.NoError(t, err)
	title, err := rules.Condition("title", ruleContext(t, MySQL, "equal", "Help"))
	require.NoError(t, err)
	assert.Equal(t, title, song)

	genre, err := rules.Condition("genre", ruleContext(t, MySQL, "equal", "Jazz"))
	require.NoError(t, err)
	assert.Equal(t, "LOWER(genre.name) = LOWER(?)", genre.SQL)
}

func TestGenericRulesCompareOwnColumns(t *testing.T) {
	frag, err := GenericRules().Condition("myrating", ruleContext(t, MySQL, ">=", "4"))
	require.NoError(t, err)
	assert.Equal(t, Fragment{SQL: "*PREFIX*music_tracks.rating >= ?", Arity: 1}, frag)

	frag, err = GenericRules().Condition("my_flagged", ruleContext(t, MySQL, "true", ""))
	require.NoError(t, err)
	assert.Equal(t, Fragment{SQL: "*PREFIX*music_tracks.starred IS NOT NULL"}, frag)
}
