package repository

import (
	"fmt"
	"strings"
)

// TrackRules are the advanced search rules of tracks. Anything not listed here
// falls back to GenericRules.
//
// The joined tables are referenced through the aliases of the track row
// projection: album, artist, genre and file.
func TrackRules() *RuleSet {
	s := NewRuleSet(GenericRules())

	s.Register("anywhere", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		fields := []string{c.col("title"), "file.name", "artist.name", "album.name", "COALESCE(genre.name, '')"}
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = textCondition(c, f)
		}
		glue := " OR "
		if c.Op.Negative() {
			glue = " AND "
		}
		return Fragment{SQL: "(" + strings.Join(parts, glue) + ")", Arity: len(fields)}, nil
	})

	s.Register("album", compareText("album.name"))
	s.Register("artist", compareText("artist.name"))
	s.Register("album_artist", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		sql := c.col("album_id") + " IN (SELECT al.id FROM *PREFIX*music_albums al" +
			" JOIN *PREFIX*music_artists ar ON al.album_artist_id = ar.id" +
			" WHERE " + textCondition(c, "ar.name") + ")"
		return Fragment{SQL: sql, Arity: 1}, nil
	})
	s.Register("album_artist_id", compare("album.album_artist_id"))
	s.Register("track", trackColumn(compare, "number"))
	s.Register("year", trackColumn(compare, "year"))
	s.Register("albumrating", compare("album.rating"))
	s.Register("artistrating", compare("artist.rating"))
	s.Register("favorite_album", favoriteOf("album"))
	s.Register("favorite_artist", favoriteOf("artist"))
	s.Register("played_times", trackColumn(compare, "play_count"))
	s.Register("last_play", trackColumn(compare, "last_played"))
	s.Register("time", trackColumn(compare, "length"))
	s.Register("bitrate", trackColumn(compare, "bitrate"))
	s.Register("file", compareText("file.name"))
	s.Register("mbid_album", compare("album.mbid"))
	s.Register("mbid_artist", compare("artist.mbid"))

	// Play history rules only ever see the caller's own rows. The grouped
	// variants scope their subquery to the caller.
	s.Register("myplayed", trackColumn(nullTest, "last_played"))
	s.Register("myplayedalbum", playedGroup("album_id"))
	s.Register("myplayedartist", playedGroup("artist_id"))

	s.Register("song_genre", compareText("genre.name"))
	s.Register("album_genre", genreGroup("album_id"))
	s.Register("artist_genre", genreGroup("artist_id"))

	// The row projection leaves genre.name NULL when genre_id is NULL, and an
	// unknown genre has an empty name. Both count as no genre.
	s.Register("no_genre", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, NullTestOperator); err != nil {
			return Fragment{}, err
		}
		if c.Op.Op == "IS NOT NULL" {
			return Fragment{SQL: "COALESCE(genre.name, '') = ''"}, nil
		}
		return Fragment{SQL: "COALESCE(genre.name, '') != ''"}, nil
	})

	s.Register("playlist", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		var exists string
		switch c.Op.Op {
		case "=":
			exists = "EXISTS"
		case "!=":
			exists = "NOT EXISTS"
		default:
			return Fragment{}, fmt.Errorf("%w: playlist membership is tested with equal or ne", ErrInvalidOperator)
		}
		sql := exists + " (SELECT 1 FROM *PREFIX*music_playlists p WHERE p.id = ?" +
			" AND p.user_id = " + c.col("user_id") +
			" AND p.track_ids LIKE " + playlistMember(c) + ")"
		return Fragment{SQL: sql, Arity: 1}, nil
	})
	s.Register("playlist_name", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		sql := "EXISTS (SELECT 1 FROM *PREFIX*music_playlists p WHERE " + textCondition(c, "p.name") +
			" AND p.user_id = " + c.col("user_id") +
			" AND p.track_ids LIKE " + playlistMember(c) + ")"
		return Fragment{SQL: sql, Arity: 1}, nil
	})

	// The operator slot of recent_played holds the number of tracks, not a
	// comparison. The bound parameter is the user id.
	s.Register("recent_played", func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, LimitOperator); err != nil {
			return Fragment{}, err
		}
		sub := "SELECT id FROM *PREFIX*music_tracks WHERE user_id = ? AND last_played IS NOT NULL" +
			" ORDER BY last_played DESC LIMIT " + c.Op.Op
		return Fragment{SQL: c.col("id") + " IN (" + c.Dialect.Subquery(sub) + ")", Arity: 1}, nil
	})

	s.Alias("played", "myplayed")
	s.Alias("playedalbum", "myplayedalbum")
	s.Alias("playedartist", "myplayedartist")
	s.Alias("genre", "song_genre")
	s.Alias("song", "title")
	s.Alias("mbid_song", "mbid")
	return s
}

func trackColumn(h func(expr string) RuleHandler, column string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		return h(c.col(column))(c)
	}
}

// favoriteOf matches the name of a starred album or artist.
func favoriteOf(alias string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		sql := "(" + textCondition(c, alias+".name") + " AND " + alias + ".starred IS NOT NULL)"
		return Fragment{SQL: sql, Arity: 1}, nil
	}
}

// playedGroup applies a null test to the caller's latest play of the album or
// artist the track belongs to.
func playedGroup(parent string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, NullTestOperator); err != nil {
			return Fragment{}, err
		}
		sub := "SELECT " + parent + " FROM *PREFIX*music_tracks WHERE user_id = ?" +
			" GROUP BY " + parent + " HAVING MAX(last_played) " + c.Op.Op
		return Fragment{SQL: c.col(parent) + " IN (" + c.Dialect.Subquery(sub) + ")", Arity: 1, UserParams: 1}, nil
	}
}

// genreGroup matches the concatenated genre names of the caller's tracks on
// the album or artist the track belongs to.
func genreGroup(parent string) RuleHandler {
	return func(c RuleContext) (Fragment, error) {
		if err := requireKind(c, BinaryOperator); err != nil {
			return Fragment{}, err
		}
		sub := "SELECT t." + parent + " FROM *PREFIX*music_tracks t" +
			" JOIN *PREFIX*music_genres g ON t.genre_id = g.id" +
			" WHERE t.user_id = ?" +
			" GROUP BY t." + parent +
			" HAVING " + textCondition(c, c.Dialect.GroupConcat("g.name"))
		return Fragment{SQL: c.col(parent) + " IN (" + c.Dialect.Subquery(sub) + ")", Arity: 2, UserParams: 1}, nil
	}
}

// playlistMember is a LIKE pattern matching the track's id in the |id|id| list.
func playlistMember(c RuleContext) string {
	return c.Dialect.Concat("'%|'", c.col("id"), "'|%'")
}
