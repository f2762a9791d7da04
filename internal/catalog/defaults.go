package catalog

// DefaultItems は初回起動時に登録する項目です。ID と作成日時は登録時に割り当てます。
func DefaultItems() []Item {
	return []Item{
		{
			Type:         KindFile,
			Name:         "RustDesk",
			Filename:     "rustdesk-1.4.5-x86_64.exe",
			OriginalName: "rustdesk-1.4.5-x86_64.exe",
			Storage:      StorageLocal,
			Description:  "オープンソースのリモートデスクトップツール",
			Badge:        "リモートデスクトップ",
			Version:      "1.4.5",
			Arch:         "x86_64",
		},
		{
			Type:         KindFile,
			Name:         "Mumble Client",
			Filename:     "mumble_client-1.5.857.x64.exe",
			OriginalName: "mumble_client-1.5.857.x64.exe",
			Storage:      StorageLocal,
			Description:  "低遅延のボイスチャット",
			Badge:        "ボイスチャット",
			Version:      "1.5.857",
			Arch:         "x64",
		},
	}
}
