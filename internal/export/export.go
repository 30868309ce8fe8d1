// 包 export 负责图谱导出：将站点、关系边与统计写为 JSON 文件，供外部报表与可视化使用。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/store"
)

// ToJSON 查询站点与关系边并写入 JSON 文件（带缩进格式）。
// 站点按信任分从高到低排列；stats 与 candidates 由调用方计算。
func ToJSON(ctx context.Context, s *store.SQLite, stats model.GraphStats, candidates []string, path string) error {
	sites, err := s.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	rels, err := s.ListRelationships(ctx)
	if err != nil {
		return fmt.Errorf("list relationships: %w", err)
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].TrustScore > sites[j].TrustScore })
	if candidates == nil {
		candidates = []string{}
	}
	out := model.Export{Stats: stats, Candidates: candidates, Sites: sites, Relationships: rels}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := Encode(f, out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}

// Encode 以缩进格式写出导出结构。
func Encode(w io.Writer, out model.Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
