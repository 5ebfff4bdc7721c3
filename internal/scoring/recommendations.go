package scoring

import (
	"strings"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// DefaultRecommendation is returned when no advice rule fires.
const DefaultRecommendation = "整体健康状况良好，保持健康的生活方式即可。"

const (
	causeAdviceThreshold        = 15
	organAdviceThreshold        = 10
	constitutionAdviceThreshold = 10
)

var causeAdvice = map[domain.CauseLabel]string{
	domain.CauseMicrocirculation: "建议进行适量有氧运动，如散步、太极，改善血液循环。",
	domain.CauseToxin:            "建议增加饮水量，多食用排毒食物如绿豆、海带。",
	domain.CauseHabit:            "建议调整作息，避免熬夜，保持规律生活。",
}

var organAdvice = map[domain.Organ]string{
	domain.OrganLiver:   "肝功能偏弱，建议少熬夜，避免生气，多食用绿色蔬菜。",
	domain.OrganKidney:  "肾气不足，建议节制房事，多食用黑色食物如黑豆、芝麻。",
	domain.OrganSpleen:  "脾胃虚弱，建议少食生冷，多食用山药、小米等健脾食物。",
	domain.OrganStomach: "胃部功能较弱，建议少食生冷油腻，规律饮食。",
}

var constitutionAdvice = map[domain.Constitution]string{
	domain.ConstitutionBloodDeficiency: "血虚体质，建议多食用红枣、桂圆、菠菜等补血食物。",
	domain.ConstitutionColdNature:      "寒凉体质，建议多食温热食物，如生姜、羊肉，注意保暖。",
	domain.ConstitutionQiDeficiency:    "气虚体质，建议多食山药、莲子、黄芪等补气食物。",
	domain.ConstitutionYangDeficiency:  "阳虚体质，建议注意保暖，避免生冷，多食温热食物。",
	domain.ConstitutionYinDeficiency:   "阴虚体质，建议多食用滋阴食物，如银耳、百合、枸杞。",
}

var mineralAdvice = map[domain.Mineral]string{
	domain.MineralCalcium:   "缺钙，建议多食用牛奶、豆制品、深色蔬菜。",
	domain.MineralZinc:      "缺锌，建议多食用牡蛎、牛肉、坚果。",
	domain.MineralSelenium:  "缺硒，建议多食用海鱼、鸡蛋、大蒜。",
	domain.MineralIron:      "缺铁，建议多食用瘦肉、菠菜、动物肝脏。",
	domain.MineralMagnesium: "缺镁，建议多食用深绿色蔬菜、坚果、全谷物。",
}

var vitaminAdvice = map[domain.Vitamin]string{
	domain.VitaminA: "维生素A缺乏，建议多食用胡萝卜、动物肝脏、蛋黄。",
	domain.VitaminC: "维生素C缺乏，建议多食用柑橘、猕猴桃、青椒。",
	domain.VitaminE: "维生素E缺乏，建议多食用坚果、植物油、绿叶蔬菜。",
}

const bGroupAdvice = "B族维生素缺乏，建议多食用全谷物、瘦肉、蛋类。"

// RecommendationInput carries the scores the advice rules are keyed on.
type RecommendationInput struct {
	Causes        *domain.Scores[domain.CauseLabel]
	Organs        *domain.Scores[domain.Organ]
	Constitutions *domain.Scores[domain.Constitution]
	Minerals      *domain.Scores[domain.Mineral]
	Vitamins      *domain.Scores[domain.Vitamin]
}

// GenerateRecommendations walks causes, organs, constitutions, minerals and vitamins in that
// order and joins every fired advice string with newlines.
//
// Minerals and vitamins have no threshold, so any complete input always yields advice and
// DefaultRecommendation is only reachable when those mappings are empty.
func GenerateRecommendations(in RecommendationInput) string {
	var advice []string

	advice = appendAdvice(advice, in.Causes.Top(2), causeAdvice, causeAdviceThreshold)
	advice = appendAdvice(advice, in.Organs.Top(2), organAdvice, organAdviceThreshold)
	advice = appendAdvice(advice, in.Constitutions.Top(2), constitutionAdvice, constitutionAdviceThreshold)
	advice = appendAdvice(advice, in.Minerals.Top(3), mineralAdvice, -1)

	for _, entry := range in.Vitamins.Top(3) {
		if text, ok := vitaminAdvice[entry.Key]; ok {
			advice = append(advice, text)
		} else if entry.Key.IsBGroup() {
			advice = append(advice, bGroupAdvice)
		}
	}

	if len(advice) == 0 {
		return DefaultRecommendation
	}
	return strings.Join(advice, "\n")
}

// appendAdvice adds the advice of every ranked entry above threshold. A negative threshold
// accepts any score.
func appendAdvice[K ~string](advice []string, ranked []domain.ScoreEntry[K], table map[K]string, threshold int) []string {
	for _, entry := range ranked {
		text, ok := table[entry.Key]
		if !ok {
			continue
		}
		if threshold >= 0 && entry.Score <= threshold {
			continue
		}
		advice = append(advice, text)
	}
	return advice
}
