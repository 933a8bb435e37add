package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"musiclib/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAllByArtistIncludesAlbumArtist(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "oc_")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE oc_music_tracks.user_id = ? AND (oc_music_tracks.artist_id = ?" +
		" OR oc_music_tracks.album_id IN (SELECT id FROM oc_music_albums WHERE album_artist_id = ?))" +
		" ORDER BY LOWER(oc_music_tracks.title) LIMIT 10 OFFSET 5")).
		WithArgs("alice", 3, 3).
		WillReturnRows(trackRows(1, 2))

	tracks, err := repo.FindAllByArtist(context.Background(), 3, "alice", Page{Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestFindAllByAlbumOptionalArtist(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	order := " ORDER BY music_tracks.disk, music_tracks.number, LOWER(music_tracks.title)"

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.album_id = ?)" + order)).
		WithArgs("alice", 8).
		WillReturnRows(trackRows(1))
	_, err := repo.FindAllByAlbum(context.Background(), 8, "alice", nil, NoPage)
	require.NoError(t, err)

	artistID := int64(4)
	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.album_id = ? AND music_tracks.artist_id = ?)" + order)).
		WithArgs("alice", 8, 4).
		WillReturnRows(trackRows(1))
	_, err = repo.FindAllByAlbum(context.Background(), 8, "alice", &artistID, NoPage)
	require.NoError(t, err)
}

func TestFindAllByFolderAndGenre(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("AND (file.parent = ?)")).
		WithArgs("alice", 55).
		WillReturnRows(trackRows(1))
	_, err := repo.FindAllByFolder(context.Background(), 55, "alice", NoPage)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.genre_id = ?)")).
		WithArgs("alice", 2).
		WillReturnRows(trackRows(1))
	_, err = repo.FindAllByGenre(context.Background(), 2, "alice", NoPage)
	require.NoError(t, err)
}

func TestFindByFileIDNotFound(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.file_id = ?)")).
		WithArgs("alice", 99).
		WillReturnRows(trackRows())

	_, err := repo.FindByFileID(context.Background(), 99, "alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindUniqueEntityUsesNaturalKey(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.file_id = ?)")).
		WithArgs("bob", 30).
		WillReturnRows(trackRows(3))

	found, err := repo.FindUniqueEntity(context.Background(), &model.Track{UserID: "bob", FileID: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(3), found.ID)
}

func TestFindAllByFileIDsSystemWideHasNoUserScope(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN music_genres genre ON music_tracks.genre_id = genre.id" +
		" WHERE music_tracks.file_id IN (?,?)")).
		WithArgs(10, 20).
		WillReturnRows(trackRows(1, 2))

	tracks, err := repo.FindAllByFileIDsSystemWide(context.Background(), []int64{10, 20})
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	tracks, err = repo.FindAllByFileIDsSystemWide(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestFindAllFileIDs(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_id FROM music_tracks WHERE user_id = ?")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow(10).AddRow(20))

	ids, err := repo.FindAllFileIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids)
}

func TestFindAllByNameRecursive(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(artist.name) LIKE LOWER(?) OR LOWER(album.name) LIKE LOWER(?)" +
		" OR LOWER(music_tracks.title) LIKE LOWER(?)")).
		WithArgs("alice", "%abba%", "%abba%", "%abba%").
		WillReturnRows(trackRows(1))

	_, err := repo.FindAllByNameRecursive(context.Background(), "abba", "alice", NoPage)
	require.NoError(t, err)
}

func TestFindAllByNameAndArtistName(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	ctx := context.Background()

	tracks, err := repo.FindAllByNameAndArtistName(ctx, "", "", "alice")
	require.NoError(t, err)
	assert.Empty(t, tracks)

	mock.ExpectQuery(regexp.QuoteMeta("AND (LOWER(artist.name) = LOWER(?))")).
		WithArgs("alice", "Queen").
		WillReturnRows(trackRows(1))
	_, err = repo.FindAllByNameAndArtistName(ctx, "", "Queen", "alice")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("AND (LOWER(music_tracks.title) = LOWER(?) AND LOWER(artist.name) = LOWER(?))")).
		WithArgs("alice", "Innuendo", "Queen").
		WillReturnRows(trackRows(1))
	_, err = repo.FindAllByNameAndArtistName(ctx, "Innuendo", "Queen", "alice")
	require.NoError(t, err)
}

func TestFindAllByCriteria(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	from, to := 1990, 1999

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.genre_id IN (?,?) AND music_tracks.year >= ?" +
		" AND music_tracks.year <= ?) ORDER BY music_tracks.play_count DESC")).
		WithArgs("alice", 1, 2, 1990, 1999).
		WillReturnRows(trackRows(1))

	criteria := model.Criteria{GenreIDs: []int64{1, 2}, FromYear: &from, ToYear: &to}
	_, err := repo.FindAllByCriteria(context.Background(), criteria, SortPlayCount, false, "alice", NoPage)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE music_tracks.user_id = ? ORDER BY music_tracks.id DESC")).
		WithArgs("alice").
		WillReturnRows(trackRows(1))
	_, err = repo.FindAllByCriteria(context.Background(), model.Criteria{}, SortNewest, false, "alice", NoPage)
	require.NoError(t, err)
}

func TestPlayHistoryListings(t *testing.T) {
	repo, mock := newTestTrackRepository(t, PostgreSQL, "")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.play_count > 0) ORDER BY music_tracks.play_count DESC, LOWER(music_tracks.title) LIMIT 5")).
		WithArgs("alice").
		WillReturnRows(trackRows(1))
	_, err := repo.FindFrequentPlay(ctx, "alice", Page{Limit: 5})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("AND (music_tracks.last_played IS NOT NULL) ORDER BY music_tracks.last_played DESC")).
		WithArgs("alice").
		WillReturnRows(trackRows(1))
	_, err = repo.FindRecentPlay(ctx, "alice", NoPage)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE music_tracks.user_id = $1 ORDER BY music_tracks.last_played ASC NULLS FIRST OFFSET 3")).
		WithArgs("alice").
		WillReturnRows(trackRows(1))
	_, err = repo.FindNotRecentPlay(ctx, "alice", Page{Offset: 3})
	require.NoError(t, err)
}

func TestAggregates(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM music_tracks WHERE user_id = ? AND artist_id = ?")).
		WithArgs("alice", 3).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(12))
	n, err := repo.CountByArtist(ctx, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM music_tracks WHERE user_id = ? AND album_id = ?")).
		WithArgs("alice", 8).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(9))
	n, err = repo.CountByAlbum(ctx, 8, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(length), 0) FROM music_tracks WHERE user_id = ? AND album_id = ?")).
		WithArgs("alice", 8).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(2400))
	total, err := repo.TotalDurationOfAlbum(ctx, 8, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2400), total)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(length), 0) FROM music_tracks WHERE user_id = ? AND artist_id = ?")).
		WithArgs("alice", 3).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(0))
	total, err = repo.TotalDurationOfArtist(ctx, 3, "alice")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetDurations(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	ctx := context.Background()

	durations, err := repo.GetDurations(ctx, nil, "alice")
	require.NoError(t, err)
	assert.Empty(t, durations)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, length FROM music_tracks WHERE user_id = ? AND id IN (?,?,?)")).
		WithArgs("alice", 1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "length"}).AddRow(1, 180).AddRow(2, nil))

	durations, err = repo.GetDurations(ctx, []int64{1, 2, 3}, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 180, 2: 0}, durations)
}

func TestGenreLookups(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT genre_id FROM music_tracks WHERE genre_id IS NOT NULL AND user_id = ? AND artist_id = ?")).
		WithArgs("alice", 3).
		WillReturnRows(sqlmock.NewRows([]string{"genre_id"}).AddRow(4).AddRow(6))
	genres, err := repo.GetGenresByArtistID(ctx, 3, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 6}, genres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, genre_id FROM music_tracks WHERE genre_id IS NOT NULL AND user_id = ?")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "genre_id"}).AddRow(1, 4).AddRow(2, 6).AddRow(3, 4))
	byGenre, err := repo.MapGenreIDsToTrackIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{4: {1, 3}, 6: {2}}, byGenre)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_id FROM music_tracks WHERE genre_id IS NULL AND user_id = ?")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow(70))
	files, err := repo.FindFilesWithoutScannedGenre(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{70}, files)
}

func TestFindTrackAndFolderIDsNaturalOrder(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectQuery(regexp.QuoteMeta("JOIN filecache file ON track.file_id = file.fileid WHERE track.user_id = ?")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "filename", "parent"}).
			AddRow(1, "track10.mp3", 5).
			AddRow(2, "track2.mp3", 5).
			AddRow(3, "a.mp3", 9))

	folders, err := repo.FindTrackAndFolderIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.FolderTracks{
		{FolderID: 9, TrackIDs: []int64{3}},
		{FolderID: 5, TrackIDs: []int64{2, 1}},
	}, folders)
}

func TestFindNodeNamesAndParents(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "oc_")
	ctx := context.Background()

	nodes, err := repo.FindNodeNamesAndParents(ctx, nil, "home::alice")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN oc_storages storages ON filecache.storage = storages.numeric_id" +
		" WHERE storages.id = ? AND filecache.fileid IN (?,?)")).
		WithArgs("home::alice", 5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"fileid", "name", "parent"}).
			AddRow(5, "Rock", 2).
			AddRow(9, "Jazz", 2))

	nodes, err = repo.FindNodeNamesAndParents(ctx, []int64{5, 9}, "home::alice")
	require.NoError(t, err)
	assert.Equal(t, map[int64]model.NodeInfo{
		5: {Name: "Rock", Parent: 2},
		9: {Name: "Jazz", Parent: 2},
	}, nodes)
}

func TestRecordTrackPlayed(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")
	playedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE music_tracks SET last_played = ?, play_count = play_count + 1 WHERE user_id = ? AND id = ?")

	mock.ExpectExec(query).
		WithArgs(playedAt, "alice", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.RecordTrackPlayed(context.Background(), 42, "alice", playedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(query).
		WithArgs(playedAt, "mallory", 42).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.RecordTrackPlayed(context.Background(), 42, "mallory", playedAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordTrackPlayedError(t *testing.T) {
	repo, mock := newTestTrackRepository(t, MySQL, "")

	mock.ExpectExec("UPDATE music_tracks").WillReturnError(errors.New("connection reset"))
	ok, err := repo.RecordTrackPlayed(context.Background(), 1, "alice", time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRuleNamesListsAliases(t *testing.T) {
	repo, _ := newTestTrackRepository(t, MySQL, "")
	names := repo.RuleNames()
	assert.Contains(t, names, "anywhere")
	assert.Contains(t, names, "played")
	assert.Contains(t, names, "recent_added")
	assert.IsIncreasing(t, names)
}
