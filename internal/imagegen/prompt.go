package imagegen

import "strings"

// DefaultPromptTemplate - шаблон промпта иллюстрации, %s заменяется темой истории.
const DefaultPromptTemplate = `为故事创作一幅精美的艺术插画，主题：%s。图像应该：
- 视觉效果吸引人且适合全家观看
- 采用故事书插画风格
- 色彩丰富且引人入胜
- 适合所有年龄段
- 高质量且细节丰富`

// BuildIllustrationPrompt подставляет тему в шаблон.
// Пустой шаблон заменяется DefaultPromptTemplate, шаблон без %s дополняется темой.
func BuildIllustrationPrompt(template, theme string) string {
	theme = strings.TrimSpace(theme)
	if template == "" {
		template = DefaultPromptTemplate
	}
	if !strings.Contains(template, "%s") {
		return template + " " + theme
	}
	return strings.ReplaceAll(template, "%s", theme)
}
