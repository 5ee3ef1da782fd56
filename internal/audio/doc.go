// Package audio provides playlist generation over the archived audio
// files of a creator.
//
// Generate playlists in M3U or PLS format:
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist(items)
//	os.WriteFile(playlistPath, []byte(content), 0644)
package audio
