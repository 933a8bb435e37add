package model

import "time"

// Track is one row of music_tracks together with the columns the row projection
// joins in from filecache, music_albums, music_artists and music_genres.
type Track struct {
	ID         int64      `json:"id" gorm:"column:id;primaryKey"`
	UserID     string     `json:"userId" gorm:"column:user_id"`
	Title      string     `json:"title" gorm:"column:title"`
	Number     *int       `json:"number,omitempty" gorm:"column:number"`
	Disk       *int       `json:"disk,omitempty" gorm:"column:disk"`
	Year       *int       `json:"year,omitempty" gorm:"column:year"`
	ArtistID   int64      `json:"artistId" gorm:"column:artist_id"`
	AlbumID    int64      `json:"albumId" gorm:"column:album_id"`
	Length     *int       `json:"length,omitempty" gorm:"column:length"` // seconds
	FileID     int64      `json:"fileId" gorm:"column:file_id"`
	Bitrate    *int       `json:"bitrate,omitempty" gorm:"column:bitrate"`
	Mimetype   string     `json:"mimetype" gorm:"column:mimetype"`
	GenreID    *int64     `json:"genreId,omitempty" gorm:"column:genre_id"` // nil until the genre has been scanned
	MBID       *string    `json:"mbid,omitempty" gorm:"column:mbid"`
	Starred    *time.Time `json:"starred,omitempty" gorm:"column:starred"`
	Rating     int        `json:"rating" gorm:"column:rating"`
	PlayCount  int        `json:"playCount" gorm:"column:play_count"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty" gorm:"column:last_played"`
	Created    *time.Time `json:"created,omitempty" gorm:"column:created"`
	Updated    *time.Time `json:"updated,omitempty" gorm:"column:updated"`

	// Joined columns
	Filename    string  `json:"filename" gorm:"column:filename"`
	Size        int64   `json:"size" gorm:"column:size"`
	FileModTime int64   `json:"fileModTime" gorm:"column:file_mod_time"`
	AlbumName   string  `json:"albumName" gorm:"column:album_name"`
	ArtistName  string  `json:"artistName" gorm:"column:artist_name"`
	GenreName   *string `json:"genreName,omitempty" gorm:"column:genre_name"`
}

// TableName is the unprefixed table of the host schema.
func (Track) TableName() string {
	return "music_tracks"
}

// LengthOrZero returns the duration in seconds, treating an unknown length as zero.
func (t *Track) LengthOrZero() int {
	if t.Length == nil {
		return 0
	}
	return *t.Length
}

// TrackFolder pairs a track with the filecache node it lives under. It is the raw
// material of the folder grouping before the natural filename sort.
type TrackFolder struct {
	ID       int64  `gorm:"column:id"`
	Filename string `gorm:"column:filename"`
	Parent   int64  `gorm:"column:parent"`
}

// FolderTracks lists the tracks of one folder in natural file name order.
type FolderTracks struct {
	FolderID int64   `json:"folderId"`
	TrackIDs []int64 `json:"trackIds"`
}
