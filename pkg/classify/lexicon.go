package classify

// DefaultLexicon is the built-in bilingual keyword lexicon used when the
// configuration does not provide one. Keywords are matched case-insensitively;
// CJK terms are matched as substrings.
func DefaultLexicon() map[string][]string {
	return map[string][]string{
		"tech": {
			"software", "hardware", "smartphone", "gadget", "startup", "programming",
			"internet", "cybersecurity", "cloud computing", "semiconductor", "chip",
			"科技", "软件", "芯片", "互联网",
		},
		"ai": {
			"artificial intelligence", "machine learning", "deep learning", "neural network",
			"llm", "chatgpt", "generative", "robotics", "automation",
			"人工智能", "机器学习", "大模型",
		},
		"business": {
			"market", "economy", "investment", "merger", "acquisition", "revenue",
			"earnings", "ipo", "startup funding", "inflation", "trade",
			"经济", "市场", "投资", "融资",
		},
		"finance": {
			"stocks", "bonds", "cryptocurrency", "bitcoin", "banking", "interest rate",
			"hedge fund", "portfolio", "dividend",
			"股票", "金融", "加密货币",
		},
		"science": {
			"research", "discovery", "physics", "biology", "chemistry", "astronomy",
			"climate", "vaccine", "genome", "telescope", "experiment",
			"科学", "研究", "气候",
		},
		"health": {
			"medicine", "disease", "treatment", "hospital", "vaccine", "mental health",
			"nutrition", "fitness", "epidemic",
			"健康", "医疗", "疫苗",
		},
		"sports": {
			"football", "basketball", "tennis", "olympics", "championship", "tournament",
			"league", "world cup", "athlete",
			"体育", "足球", "篮球",
		},
		"politics": {
			"election", "government", "parliament", "senate", "policy", "legislation",
			"diplomacy", "sanctions", "campaign",
			"政治", "选举", "政府",
		},
		"entertainment": {
			"movie", "film", "music", "concert", "celebrity", "streaming", "television",
			"box office", "album",
			"电影", "音乐", "娱乐",
		},
	}
}
