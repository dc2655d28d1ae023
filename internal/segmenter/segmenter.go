package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkType 分块结构类型
type ChunkType string

const (
	ChunkTypeTitle     ChunkType = "title"
	ChunkTypeParagraph ChunkType = "paragraph"
	ChunkTypeListItem  ChunkType = "list_item"
	ChunkTypeQuote     ChunkType = "quote"
	ChunkTypeFootnote  ChunkType = "footnote"
)

// Chunk 分块结果，StartPos/EndPos是规范化后文本中的字符偏移
type Chunk struct {
	Text     string
	Type     ChunkType
	StartPos int
	EndPos   int
	Metadata map[string]interface{}
}

// 结构识别的正则表（顺序敏感，部分模式有重叠，先匹配先赢）
var (
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[A-Z][A-Z\s]+$`),                  // 全大写标题
		regexp.MustCompile(`^\d+\.\s+[A-Z]`),                   // 编号章节
		regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*$`), // Title Case
		regexp.MustCompile(`^(?:Capitolo|Sezione|Parte)\s+\d+`),
		regexp.MustCompile(`^(?:Chapter|Section|Part)\s+\d+`),
	}

	listPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*[-•*]\s+`),    // 无序列表
		regexp.MustCompile(`^\s*\d+\.\s+`),    // 有序列表
		regexp.MustCompile(`^\s*[a-z]\)\s+`),  // 字母列表
		regexp.MustCompile(`^\s*[IVX]+\.\s+`), // 罗马数字列表
	}

	quotePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^".*"$`),
		regexp.MustCompile(`^«.*»$`),
		regexp.MustCompile(`^\x{201C}.*\x{201D}$`), // 弯引号
	}

	footnotePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d+\s+`),
		regexp.MustCompile(`^\*\s+`),
	}

	classifiers = []struct {
		patterns  []*regexp.Regexp
		chunkType ChunkType
	}{
		{titlePatterns, ChunkTypeTitle},
		{listPatterns, ChunkTypeListItem},
		{quotePatterns, ChunkTypeQuote},
		{footnotePatterns, ChunkTypeFootnote},
	}

	pageNumberRe       = regexp.MustCompile(`(?m)^[0-9]+[ \t]*$`)
	ellipsisRe         = regexp.MustCompile(`\.{3,}`)
	whitespaceRunRe    = regexp.MustCompile(`\s+`)
	sentenceSplitRe    = regexp.MustCompile(`[.!?]+\s+`)
	overlapBoundaryRe  = regexp.MustCompile(`[.!?]\s+`)
	minParagraphLength = 20
	minSentenceLength  = 10
)

// Segmenter 学术文本分段器，输出有结构类型标注的定长重叠分块。
// 相同输入产生相同输出，没有隐藏随机性。
type Segmenter struct {
	chunkSize    int
	overlapSize  int
	minChunkSize int
	maxChunkSize int
}

// NewSegmenter 创建分段器，非法参数回退到默认值
func NewSegmenter(chunkSize, overlapSize, minChunkSize, maxChunkSize int) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlapSize < 0 {
		overlapSize = 200
	}
	if overlapSize >= chunkSize {
		overlapSize = chunkSize / 5
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}
	if maxChunkSize < chunkSize {
		maxChunkSize = chunkSize * 2
	}
	return &Segmenter{
		chunkSize:    chunkSize,
		overlapSize:  overlapSize,
		minChunkSize: minChunkSize,
		maxChunkSize: maxChunkSize,
	}
}

// Segment 将提取出的全文切分为有序分块。空文本或全是噪声的文本返回空切片而不是错误
func (s *Segmenter) Segment(text string, documentID uint, filename string) []Chunk {
	normalized := s.preprocess(text)
	if normalized == "" {
		return nil
	}

	paragraphs := splitParagraphs(normalized)

	var chunks []Chunk
	position := 0
	for _, paragraph := range paragraphs {
		// 小于最小分块长度的段落视为噪声整段跳过
		if len(paragraph) < s.minChunkSize {
			position += len(paragraph)
			continue
		}

		chunkType := detectChunkType(paragraph)
		chunks = append(chunks, s.chunksFromParagraph(paragraph, position, chunkType, documentID, filename)...)
		position += len(paragraph)
	}

	chunks = s.applyOverlap(chunks)
	return s.finalize(chunks)
}

// preprocess 规范化空白：保留段落分隔（两个换行），其余空白串折叠为单个空格；
// 去掉独占一行的页码；压缩连续句点
func (s *Segmenter) preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = ellipsisRe.ReplaceAllString(text, "...")
	text = whitespaceRunRe.ReplaceAllStringFunc(text, func(run string) string {
		if strings.Count(run, "\n") >= 2 {
			return "\n\n"
		}
		return " "
	})
	return strings.TrimSpace(text)
}

// splitParagraphs 按空行切段，丢弃过短的段落（页眉页脚等噪声）
func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) >= minParagraphLength {
			paragraphs = append(paragraphs, part)
		}
	}
	return paragraphs
}

// detectChunkType 按序匹配结构类型，无匹配归为普通段落
func detectChunkType(text string) ChunkType {
	trimmed := strings.TrimSpace(text)
	for _, c := range classifiers {
		for _, p := range c.patterns {
			if p.MatchString(trimmed) {
				return c.chunkType
			}
		}
	}
	return ChunkTypeParagraph
}

// chunksFromParagraph 把单个段落切成一个或多个分块
func (s *Segmenter) chunksFromParagraph(paragraph string, startPos int, chunkType ChunkType, documentID uint, filename string) []Chunk {
	if len(paragraph) <= s.chunkSize {
		return []Chunk{s.newChunk(paragraph, chunkType, startPos, documentID, filename, 0)}
	}

	sentences := splitSentences(paragraph)

	var chunks []Chunk
	var current string
	currentStart := startPos

	for _, sentence := range sentences {
		if current != "" && len(current)+len(sentence) > s.chunkSize {
			chunks = append(chunks, s.newChunk(current, chunkType, currentStart, documentID, filename, len(chunks)))
			currentStart += len(current)
			current = sentence
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}

	// 尾部累积不足最小长度时丢弃，避免产生碎片块
	if current != "" && len(current) >= s.minChunkSize {
		chunks = append(chunks, s.newChunk(current, chunkType, currentStart, documentID, filename, len(chunks)))
	}

	return chunks
}

func (s *Segmenter) newChunk(text string, chunkType ChunkType, startPos int, documentID uint, filename string, paragraphIndex int) Chunk {
	text = strings.TrimSpace(text)
	return Chunk{
		Text:     text,
		Type:     chunkType,
		StartPos: startPos,
		EndPos:   startPos + len(text),
		Metadata: map[string]interface{}{
			"document_id":     documentID,
			"filename":        filename,
			"paragraph_index": paragraphIndex,
		},
	}
}

// splitSentences 按句末标点加空白切句，丢弃过短的碎片
func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) >= minSentenceLength {
			sentences = append(sentences, part)
		}
	}
	return sentences
}

// applyOverlap 给首块之外的每个分块前置上一块原文的尾部，降低检索时的边界信息丢失。
// 取上一块的原始文本而不是它叠加重叠后的文本，避免重叠内容滚雪球
func (s *Segmenter) applyOverlap(chunks []Chunk) []Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	out := make([]Chunk, 0, len(chunks))
	out = append(out, chunks[0])
	for i := 1; i < len(chunks); i++ {
		overlap := s.overlapText(chunks[i-1].Text)
		c := chunks[i]
		if overlap != "" {
			c.Text = overlap + " " + c.Text
		}
		out = append(out, c)
	}
	return out
}

// overlapText 取文本尾部overlapSize个字符，窗口内存在句边界时前移到句边界后
func (s *Segmenter) overlapText(text string) string {
	if len(text) <= s.overlapSize {
		return text
	}

	start := len(text) - s.overlapSize
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	window := text[start:]

	if loc := overlapBoundaryRe.FindStringIndex(window); loc != nil {
		return window[loc[1]:]
	}
	return window
}

// finalize 截断超长分块并补充统计元数据。重叠只会让分块变长，最小长度不再复查
func (s *Segmenter) finalize(chunks []Chunk) []Chunk {
	for i := range chunks {
		text := chunks[i].Text
		if len(text) > s.maxChunkSize {
			end := s.maxChunkSize
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
			text = text[:end]
		}
		text = strings.TrimSpace(text)
		chunks[i].Text = text
		chunks[i].Metadata["chunk_type"] = string(chunks[i].Type)
		chunks[i].Metadata["word_count"] = len(strings.Fields(text))
		chunks[i].Metadata["char_count"] = len(text)
	}
	return chunks
}
