package ai

// ComparePrompt asks for a comparison of a main article with related ones.
// Fill it with fmt.Sprintf(ComparePrompt, mainArticle, relatedArticles).
const ComparePrompt = `作為一名專業的學術研究者，請您根據以下指引，對所提供的摘要，進行比較：
1. 你會看到一篇主要文章的摘要，以及幾篇相似文章的摘要。
2. 你需要比較主要文章和相似文章的內容，並提供你的觀點。
3. 你需要指出主要文章和相似文章之間的相似之處和差異之處。
4. 嚴格依賴提供的文本，不包括外部資訊。

主要文章：
%s

相似文章：
%s
`

// ArticleTemplate renders one article as markdown with title and abstract.
const ArticleTemplate = "# %s\n\n摘要：\n%s"
