package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"musiclib/logger"
	"musiclib/model"

	"gorm.io/gorm"
)

// TrackRepository defines the track queries of the music library. Every method
// is scoped to one user unless its name says otherwise.
type TrackRepository interface {
	FindAll(ctx context.Context, userID string, sortBy SortBy, invert bool, page Page) ([]model.Track, error)
	Find(ctx context.Context, id int64, userID string) (*model.Track, error)
	FindByIDs(ctx context.Context, ids []int64, userID string) ([]model.Track, error)
	Count(ctx context.Context, userID string) (int64, error)
	FindAllByName(ctx context.Context, name string, userID string, fuzzy bool, page Page) ([]model.Track, error)
	FindAllStarred(ctx context.Context, userID string, page Page) ([]model.Track, error)
	FindAllAdvanced(ctx context.Context, conjunction string, rules []model.AdvancedRule, random bool,
		sortBy SortBy, invert bool, userID string, page Page) ([]model.Track, error)

	FindAllByArtist(ctx context.Context, artistID int64, userID string, page Page) ([]model.Track, error)
	FindAllByAlbum(ctx context.Context, albumID int64, userID string, artistID *int64, page Page) ([]model.Track, error)
	FindAllByFolder(ctx context.Context, folderID int64, userID string, page Page) ([]model.Track, error)
	FindAllByGenre(ctx context.Context, genreID int64, userID string, page Page) ([]model.Track, error)
	FindByFileID(ctx context.Context, fileID int64, userID string) (*model.Track, error)
	FindAllByFileIDs(ctx context.Context, fileIDs []int64, userID string) ([]model.Track, error)
	FindAllByFileIDsSystemWide(ctx context.Context, fileIDs []int64) ([]model.Track, error)
	FindUniqueEntity(ctx context.Context, track *model.Track) (*model.Track, error)
	FindAllFileIDs(ctx context.Context, userID string) ([]int64, error)
	FindAllByNameRecursive(ctx context.Context, name string, userID string, page Page) ([]model.Track, error)
	FindAllByNameAndArtistName(ctx context.Context, name, artistName string, userID string) ([]model.Track, error)
	FindAllByCriteria(ctx context.Context, criteria model.Criteria, sortBy SortBy, invert bool, userID string, page Page) ([]model.Track, error)
	FindFrequentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error)
	FindRecentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error)
	FindNotRecentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error)

	CountByArtist(ctx context.Context, artistID int64, userID string) (int64, error)
	CountByAlbum(ctx context.Context, albumID int64, userID string) (int64, error)
	TotalDurationOfAlbum(ctx context.Context, albumID int64, userID string) (int64, error)
	TotalDurationOfArtist(ctx context.Context, artistID int64, userID string) (int64, error)
	GetDurations(ctx context.Context, trackIDs []int64, userID string) (map[int64]int, error)
	GetGenresByArtistID(ctx context.Context, artistID int64, userID string) ([]int64, error)
	MapGenreIDsToTrackIDs(ctx context.Context, userID string) (map[int64][]int64, error)
	FindFilesWithoutScannedGenre(ctx context.Context, userID string) ([]int64, error)
	FindTrackAndFolderIDs(ctx context.Context, userID string) ([]model.FolderTracks, error)
	FindNodeNamesAndParents(ctx context.Context, nodeIDs []int64, storageID string) (map[int64]model.NodeInfo, error)

	RecordTrackPlayed(ctx context.Context, trackID int64, userID string, timeOfPlay time.Time) (bool, error)
	RuleNames() []string
}

// trackProjection joins the file, album, artist and genre of each track. The
// first three always exist for a consistent library; the genre is missing until
// the genre scan has run.
const trackProjection = "SELECT *PREFIX*music_tracks.*," +
	" file.name AS filename, file.size, file.mtime AS file_mod_time," +
	" album.name AS album_name, artist.name AS artist_name, genre.name AS genre_name" +
	" FROM *PREFIX*music_tracks" +
	" INNER JOIN *PREFIX*filecache file ON *PREFIX*music_tracks.file_id = file.fileid" +
	" INNER JOIN *PREFIX*music_albums album ON *PREFIX*music_tracks.album_id = album.id" +
	" INNER JOIN *PREFIX*music_artists artist ON *PREFIX*music_tracks.artist_id = artist.id" +
	" LEFT JOIN *PREFIX*music_genres genre ON *PREFIX*music_tracks.genre_id = genre.id"

const orderByTitle = "ORDER BY LOWER(*PREFIX*music_tracks.title)"

type trackRepository struct {
	*entityMapper[model.Track]
	natural NaturalOrder
}

// NewTrackRepository creates the track repository. tablePrefix is prepended to
// every table name of the host schema.
func NewTrackRepository(db *gorm.DB, dialect Dialect, tablePrefix string, natural NaturalOrder) TrackRepository {
	m := &entityMapper[model.Track]{
		db:         db,
		dialect:    dialect,
		prefix:     tablePrefix,
		table:      model.Track{}.TableName(),
		nameColumn: "title",
		projection: trackProjection,
		rules:      TrackRules(),
	}
	r := &trackRepository{entityMapper: m, natural: natural}
	m.sortClause = r.sortClause
	return r
}

// sortClause adds the track specific orderings to the generic ones. Names are
// lower-cased with LOWER() so MySQL and PostgreSQL sort alike.
func (r *trackRepository) sortClause(sortBy SortBy, invert bool) string {
	switch sortBy {
	case SortParent:
		dir := direction(invert, "ASC", "DESC")
		return "ORDER BY LOWER(artist.name) " + dir + ", LOWER(" + r.col("title") + ") " + dir
	case SortPlayCount:
		return "ORDER BY " + r.col("play_count") + " " + direction(invert, "DESC", "ASC")
	case SortLastPlayed:
		return "ORDER BY " + r.col("last_played") + " " + direction(invert, "DESC", "ASC")
	default:
		return r.defaultSortClause(sortBy, invert)
	}
}

func (r *trackRepository) RuleNames() []string {
	return r.rules.Names()
}

// FindAllByArtist returns tracks performed by the artist together with tracks on
// albums of the artist.
func (r *trackRepository) FindAllByArtist(ctx context.Context, artistID int64, userID string, page Page) ([]model.Track, error) {
	condition := r.col("artist_id") + " = ? OR " + r.col("album_id") +
		" IN (SELECT id FROM *PREFIX*music_albums WHERE album_artist_id = ?)"
	sql := r.selectUserEntities(condition, orderByTitle)
	return r.findEntities(ctx, sql, page, userID, artistID, artistID)
}

// FindAllByAlbum lists the album in disk and track number order, optionally
// only the tracks of one artist.
func (r *trackRepository) FindAllByAlbum(ctx context.Context, albumID int64, userID string, artistID *int64, page Page) ([]model.Track, error) {
	condition := r.col("album_id") + " = ?"
	args := []interface{}{userID, albumID}
	if artistID != nil {
		condition += " AND " + r.col("artist_id") + " = ?"
		args = append(args, *artistID)
	}
	sql := r.selectUserEntities(condition,
		"ORDER BY "+r.col("disk")+", "+r.col("number")+", LOWER("+r.col("title")+")")
	return r.findEntities(ctx, sql, page, args...)
}

// FindAllByFolder lists the tracks whose file lives directly in folderID.
func (r *trackRepository) FindAllByFolder(ctx context.Context, folderID int64, userID string, page Page) ([]model.Track, error) {
	sql := r.selectUserEntities("file.parent = ?", orderByTitle)
	return r.findEntities(ctx, sql, page, userID, folderID)
}

func (r *trackRepository) FindAllByGenre(ctx context.Context, genreID int64, userID string, page Page) ([]model.Track, error) {
	sql := r.selectUserEntities(r.col("genre_id")+" = ?", orderByTitle)
	return r.findEntities(ctx, sql, page, userID, genreID)
}

// FindByFileID returns ErrNotFound when the user has no track for the file.
func (r *trackRepository) FindByFileID(ctx context.Context, fileID int64, userID string) (*model.Track, error) {
	sql := r.selectUserEntities(r.col("file_id")+" = ?", "")
	return r.findEntity(ctx, sql, userID, fileID)
}

func (r *trackRepository) FindAllByFileIDs(ctx context.Context, fileIDs []int64, userID string) ([]model.Track, error) {
	if len(fileIDs) == 0 {
		return []model.Track{}, nil
	}
	sql := r.selectUserEntities(r.col("file_id")+" IN "+questionMarks(len(fileIDs)), "")
	return r.findEntities(ctx, sql, NoPage, append([]interface{}{userID}, int64Args(fileIDs)...)...)
}

// FindAllByFileIDsSystemWide finds the tracks of every user referencing the
// files. It serves file event handling, where the acting user is unknown.
func (r *trackRepository) FindAllByFileIDsSystemWide(ctx context.Context, fileIDs []int64) ([]model.Track, error) {
	if len(fileIDs) == 0 {
		return []model.Track{}, nil
	}
	sql := r.selectEntities(r.col("file_id")+" IN "+questionMarks(len(fileIDs)), "")
	return r.findEntities(ctx, sql, NoPage, int64Args(fileIDs)...)
}

// FindUniqueEntity looks a track up by its natural key (user_id, file_id).
func (r *trackRepository) FindUniqueEntity(ctx context.Context, track *model.Track) (*model.Track, error) {
	return r.FindByFileID(ctx, track.FileID, track.UserID)
}

func (r *trackRepository) FindAllFileIDs(ctx context.Context, userID string) ([]int64, error) {
	ids := make([]int64, 0)
	sql := "SELECT file_id FROM *PREFIX*music_tracks WHERE user_id = ?"
	if err := r.scan(ctx, &ids, sql, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindAllByNameRecursive matches name as a substring of the artist, the album
// or the title.
func (r *trackRepository) FindAllByNameRecursive(ctx context.Context, name string, userID string, page Page) ([]model.Track, error) {
	condition := "LOWER(artist.name) LIKE LOWER(?) OR LOWER(album.name) LIKE LOWER(?) OR LOWER(" + r.col("title") + ") LIKE LOWER(?)"
	sql := r.selectUserEntities(condition, orderByTitle)
	pattern := substringPattern(name)
	return r.findEntities(ctx, sql, page, userID, pattern, pattern, pattern)
}

// FindAllByNameAndArtistName matches title and artist name exactly, ignoring
// case. Empty arguments are left out; with both empty nothing is queried.
func (r *trackRepository) FindAllByNameAndArtistName(ctx context.Context, name, artistName string, userID string) ([]model.Track, error) {
	var conditions []string
	args := []interface{}{userID}
	if name != "" {
		conditions = append(conditions, "LOWER("+r.col("title")+") = LOWER(?)")
		args = append(args, name)
	}
	if artistName != "" {
		conditions = append(conditions, "LOWER(artist.name) = LOWER(?)")
		args = append(args, artistName)
	}
	if len(conditions) == 0 {
		return []model.Track{}, nil
	}
	sql := r.selectUserEntities(strings.Join(conditions, " AND "), "")
	return r.findEntities(ctx, sql, NoPage, args...)
}

// FindAllByCriteria intersects the given criteria. Criteria left empty do not
// restrict the result.
func (r *trackRepository) FindAllByCriteria(ctx context.Context, criteria model.Criteria, sortBy SortBy, invert bool, userID string, page Page) ([]model.Track, error) {
	var conditions []string
	args := []interface{}{userID}
	if len(criteria.GenreIDs) > 0 {
		conditions = append(conditions, r.col("genre_id")+" IN "+questionMarks(len(criteria.GenreIDs)))
		args = append(args, int64Args(criteria.GenreIDs)...)
	}
	if len(criteria.ArtistIDs) > 0 {
		conditions = append(conditions, r.col("artist_id")+" IN "+questionMarks(len(criteria.ArtistIDs)))
		args = append(args, int64Args(criteria.ArtistIDs)...)
	}
	if criteria.FromYear != nil {
		conditions = append(conditions, r.col("year")+" >= ?")
		args = append(args, *criteria.FromYear)
	}
	if criteria.ToYear != nil {
		conditions = append(conditions, r.col("year")+" <= ?")
		args = append(args, *criteria.ToYear)
	}
	sql := r.selectUserEntities(strings.Join(conditions, " AND "), r.sortClause(sortBy, invert))
	return r.findEntities(ctx, sql, page, args...)
}

func (r *trackRepository) FindFrequentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error) {
	sql := r.selectUserEntities(r.col("play_count")+" > 0",
		"ORDER BY "+r.col("play_count")+" DESC, LOWER("+r.col("title")+")")
	return r.findEntities(ctx, sql, page, userID)
}

func (r *trackRepository) FindRecentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error) {
	sql := r.selectUserEntities(r.col("last_played")+" IS NOT NULL", "ORDER BY "+r.col("last_played")+" DESC")
	return r.findEntities(ctx, sql, page, userID)
}

// FindNotRecentPlay starts with never played tracks, then the least recently played.
func (r *trackRepository) FindNotRecentPlay(ctx context.Context, userID string, page Page) ([]model.Track, error) {
	sql := r.selectUserEntities("", "ORDER BY "+r.dialect.AscNullsFirst(r.col("last_played")))
	return r.findEntities(ctx, sql, page, userID)
}

func (r *trackRepository) CountByArtist(ctx context.Context, artistID int64, userID string) (int64, error) {
	return r.aggregate(ctx, "COUNT(*)", "artist_id", artistID, userID)
}

func (r *trackRepository) CountByAlbum(ctx context.Context, albumID int64, userID string) (int64, error) {
	return r.aggregate(ctx, "COUNT(*)", "album_id", albumID, userID)
}

// TotalDurationOfAlbum sums the track lengths in seconds.
func (r *trackRepository) TotalDurationOfAlbum(ctx context.Context, albumID int64, userID string) (int64, error) {
	return r.aggregate(ctx, "COALESCE(SUM(length), 0)", "album_id", albumID, userID)
}

func (r *trackRepository) TotalDurationOfArtist(ctx context.Context, artistID int64, userID string) (int64, error) {
	return r.aggregate(ctx, "COALESCE(SUM(length), 0)", "artist_id", artistID, userID)
}

func (r *trackRepository) aggregate(ctx context.Context, expr, column string, id int64, userID string) (int64, error) {
	var result int64
	sql := "SELECT " + expr + " FROM *PREFIX*music_tracks WHERE user_id = ? AND " + column + " = ?"
	if err := r.scan(ctx, &result, sql, userID, id); err != nil {
		return 0, err
	}
	return result, nil
}

// GetDurations maps each of the user's tracks among trackIDs to its length in
// seconds. Unknown lengths map to zero.
func (r *trackRepository) GetDurations(ctx context.Context, trackIDs []int64, userID string) (map[int64]int, error) {
	result := make(map[int64]int, len(trackIDs))
	if len(trackIDs) == 0 {
		return result, nil
	}
	var rows []model.Track
	sql := "SELECT id, length FROM *PREFIX*music_tracks WHERE user_id = ? AND id IN " + questionMarks(len(trackIDs))
	if err := r.scan(ctx, &rows, sql, append([]interface{}{userID}, int64Args(trackIDs)...)...); err != nil {
		return nil, err
	}
	for i := range rows {
		result[rows[i].ID] = rows[i].LengthOrZero()
	}
	return result, nil
}

// GetGenresByArtistID returns the distinct genres of the artist's tracks.
func (r *trackRepository) GetGenresByArtistID(ctx context.Context, artistID int64, userID string) ([]int64, error) {
	ids := make([]int64, 0)
	sql := "SELECT DISTINCT genre_id FROM *PREFIX*music_tracks WHERE genre_id IS NOT NULL AND user_id = ? AND artist_id = ?"
	if err := r.scan(ctx, &ids, sql, userID, artistID); err != nil {
		return nil, err
	}
	return ids, nil
}

type trackGenre struct {
	ID      int64 `gorm:"column:id"`
	GenreID int64 `gorm:"column:genre_id"`
}

// MapGenreIDsToTrackIDs groups the user's track ids by genre id. Tracks without
// a scanned genre are left out.
func (r *trackRepository) MapGenreIDsToTrackIDs(ctx context.Context, userID string) (map[int64][]int64, error) {
	var rows []trackGenre
	sql := "SELECT id, genre_id FROM *PREFIX*music_tracks WHERE genre_id IS NOT NULL AND user_id = ?"
	if err := r.scan(ctx, &rows, sql, userID); err != nil {
		return nil, err
	}
	result := make(map[int64][]int64)
	for _, row := range rows {
		result[row.GenreID] = append(result[row.GenreID], row.ID)
	}
	return result, nil
}

// FindFilesWithoutScannedGenre returns file ids of tracks whose genre has never
// been scanned. Tracks scanned with an unknown genre reference an empty-named
// genre instead and are not included.
func (r *trackRepository) FindFilesWithoutScannedGenre(ctx context.Context, userID string) ([]int64, error) {
	ids := make([]int64, 0)
	sql := "SELECT file_id FROM *PREFIX*music_tracks WHERE genre_id IS NULL AND user_id = ?"
	if err := r.scan(ctx, &ids, sql, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindTrackAndFolderIDs groups the user's track ids by the folder of their
// file. Tracks are ordered by natural file name order, which SQL cannot
// express portably, so the rows are sorted here after fetching. Folders
// appear in the order of their first track.
func (r *trackRepository) FindTrackAndFolderIDs(ctx context.Context, userID string) ([]model.FolderTracks, error) {
	var rows []model.TrackFolder
	sql := "SELECT track.id AS id, file.name AS filename, file.parent AS parent" +
		" FROM *PREFIX*music_tracks track" +
		" JOIN *PREFIX*filecache file ON track.file_id = file.fileid" +
		" WHERE track.user_id = ?"
	if err := r.scan(ctx, &rows, sql, userID); err != nil {
		return nil, err
	}

	r.natural.sortByFilename(rows)

	index := make(map[int64]int)
	folders := make([]model.FolderTracks, 0)
	for _, row := range rows {
		i, ok := index[row.Parent]
		if !ok {
			i = len(folders)
			index[row.Parent] = i
			folders = append(folders, model.FolderTracks{FolderID: row.Parent})
		}
		folders[i].TrackIDs = append(folders[i].TrackIDs, row.ID)
	}
	return folders, nil
}

type nodeRow struct {
	FileID int64  `gorm:"column:fileid"`
	Name   string `gorm:"column:name"`
	Parent int64  `gorm:"column:parent"`
}

// FindNodeNamesAndParents resolves filecache nodes of one storage backend,
// identified by its string id.
func (r *trackRepository) FindNodeNamesAndParents(ctx context.Context, nodeIDs []int64, storageID string) (map[int64]model.NodeInfo, error) {
	result := make(map[int64]model.NodeInfo, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return result, nil
	}
	var rows []nodeRow
	sql := "SELECT filecache.fileid, filecache.name, filecache.parent" +
		" FROM *PREFIX*filecache filecache" +
		" JOIN *PREFIX*storages storages ON filecache.storage = storages.numeric_id" +
		" WHERE storages.id = ? AND filecache.fileid IN " + questionMarks(len(nodeIDs))
	if err := r.scan(ctx, &rows, sql, append([]interface{}{storageID}, int64Args(nodeIDs)...)...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.FileID] = model.NodeInfo{Name: row.Name, Parent: row.Parent}
	}
	return result, nil
}

// RecordTrackPlayed stamps the play time and bumps the play count in one
// statement. The increment is relative so concurrent plays are all counted.
// The updated column is left alone.
// It reports false when the user has no such track.
func (r *trackRepository) RecordTrackPlayed(ctx context.Context, trackID int64, userID string, timeOfPlay time.Time) (bool, error) {
	sql := "UPDATE *PREFIX*music_tracks SET last_played = ?, play_count = play_count + 1 WHERE user_id = ? AND id = ?"
	affected, err := r.execute(ctx, sql, timeOfPlay, userID, trackID)
	if err != nil {
		return false, fmt.Errorf("failed to record play of track %d: %w", trackID, err)
	}
	logger.Debug("Track play recorded",
		logger.Int64("trackId", trackID),
		logger.String("userId", userID),
		logger.Bool("found", affected > 0))
	return affected > 0, nil
}
