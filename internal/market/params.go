package market

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrBadSearchURL 搜索 URL 不合法 (无法解析或缺少关键词)
var ErrBadSearchURL = errors.New("bad search url")

// SearchParams 一次市场搜索的过滤条件
// 从商品登记的搜索 URL 中提取, 供 API 查询与 HTML 兜底两条路径复用。
type SearchParams struct {
	Keyword     string `json:"keyword"`
	CategoryID  string `json:"category_id"`
	ConditionID string `json:"condition_id"`
	SoldOnly    bool   `json:"sold_only"`
	Location    string `json:"location"`
}

// ParseSearchURL 从市场搜索 URL 中提取过滤条件。
//
// URL 格式示例 (在售):
//   - https://www.ebay.com/sch/i.html?_nkw=初音ミク フィギュア&_sacat=183454&LH_PrefLoc=1
//
// 已售过滤需要 LH_Sold=1 与 LH_Complete=1 同时出现:
//   - https://www.ebay.com/sch/i.html?_nkw=初音ミク&LH_Sold=1&LH_Complete=1
//
// 关键词 (_nkw) 缺失或为空白视为无效 URL。
func ParseSearchURL(raw string) (SearchParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SearchParams{}, fmt.Errorf("%w: %v", ErrBadSearchURL, err)
	}

	q := u.Query()
	keyword := strings.TrimSpace(q.Get("_nkw"))
	if keyword == "" {
		return SearchParams{}, fmt.Errorf("%w: missing _nkw keyword", ErrBadSearchURL)
	}

	return SearchParams{
		Keyword:     keyword,
		CategoryID:  q.Get("_sacat"),
		ConditionID: q.Get("LH_ItemCondition"),
		SoldOnly:    q.Get("LH_Sold") == "1" && q.Get("LH_Complete") == "1",
		Location:    q.Get("LH_PrefLoc"),
	}, nil
}

// BuildSearchURL 由过滤条件反向构造搜索结果页 URL (HTML 兜底路径)。
//
// 参数:
//
//	base: 网页端基础地址, 例如 https://www.ebay.com
//	p: 过滤条件
//	page: 页码 (从 1 开始, 第一页不带 _pgn)
//
// 返回值:
//
//	string: 完整的搜索结果页 URL
func BuildSearchURL(base string, p SearchParams, page int) string {
	values := url.Values{}
	values.Set("_nkw", p.Keyword)

	if p.CategoryID != "" {
		values.Set("_sacat", p.CategoryID)
	}
	if p.ConditionID != "" {
		values.Set("LH_ItemCondition", p.ConditionID)
	}
	if p.SoldOnly {
		values.Set("LH_Sold", "1")
		values.Set("LH_Complete", "1")
	}
	if p.Location != "" {
		values.Set("LH_PrefLoc", p.Location)
	}

	// 编码并处理特殊字符
	qs := values.Encode()
	// URL 编码会把空格变成 +，改为 %20
	qs = strings.ReplaceAll(qs, "+", "%20")

	if page > 1 {
		qs += fmt.Sprintf("&_pgn=%d", page)
	}

	return strings.TrimSuffix(base, "/") + "/sch/i.html?" + qs
}
