package cleaning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
)

func TestText_UnicodeSpaces(t *testing.T) {
	c := New()
	assert.Equal(t, "北京是首都", c.Text("北京​是　首都"))
	assert.Equal(t, "a b", c.Text("a  \t b"))
	assert.Equal(t, "首都", c.Text("\uFEFF首都"))
}

func TestText_URLRemoval(t *testing.T) {
	c := New()
	assert.Equal(t, "详情见 ，谢谢", c.Text("详情见 http://example.com/page?a=1 ，谢谢"))
	assert.Equal(t, "来源：", c.Text("来源：www.news.cn/a/b"))
	assert.Equal(t, "来自", c.Text("来自sina.com.cn"))
}

func TestText_HTMLTags(t *testing.T) {
	c := New()
	assert.Equal(t, "正文内容", c.Text("<div class=\"a\">正文</div><br/>内容"))
	// Angle-bracketed Chinese is quoted text, not markup.
	assert.Equal(t, "他说军事新闻很重要", c.Text("他说<军事新闻>很重要"))
	// A tag with no Chinese inside is markup and goes away entirely.
	assert.Equal(t, "", c.Text("<123>"))
}

func TestText_CollapseRepeats(t *testing.T) {
	c := New()
	assert.Equal(t, "哈！", c.Text("哈哈哈哈哈！"))
	assert.Equal(t, "重要", c.Text("重要重要重要"))
	// Digits and roman numerals are not stutter.
	assert.Equal(t, "2000年", c.Text("2000年"))
	assert.Equal(t, "III型", c.Text("III型"))
}

func TestText_PunctDedup(t *testing.T) {
	c := New()
	assert.Equal(t, "真的吗？！", c.Text("真的吗？？？！！！"))
	assert.Equal(t, "结束。", c.Text("结束。。。。"))
}

func TestText_IdempotentOnCleanText(t *testing.T) {
	c := New()
	clean := "北京是中国的首都。上海是经济中心。"
	assert.Equal(t, clean, c.Text(clean))
	assert.Equal(t, c.Text(clean), c.Text(c.Text(clean)))
}

func TestSample_DropsEmptyAndDuplicateParagraphs(t *testing.T) {
	c := New()
	s := &sample.Sample{
		Question: "问题？",
		Documents: []*sample.Document{{
			Title: "标题",
			Paragraphs: []string{
				"第一段内容。",
				"",
				"   ",
				"第一段内容。",
				"第二段内容。",
			},
		}},
	}
	c.Sample(s)

	assert.Equal(t, []string{"第一段内容。", "第二段内容。"}, s.Documents[0].Paragraphs)
}

func TestSample_CleansMarkerFields(t *testing.T) {
	c := New()
	s := &sample.Sample{
		Question:            "问题",
		SupportingParagraph: "@content1@支撑​段落@content1@",
		Documents:           []*sample.Document{},
	}
	c.Sample(s)
	assert.Equal(t, "@content1@支撑段落@content1@", s.SupportingParagraph)
}
