package llm

import (
	"fmt"
	"sort"
	"strings"

	"brain-alpha-lab/internal/brain"
)

const (
	maxPromptFields       = 30
	maxPromptCategories   = 10
	maxOperatorsPerGroup  = 10
	maxPolishOperatorsPer = 5
)

func buildGeneratePrompt(req GenerateRequest, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique alpha factor expressions using the available operators and data fields for the WorldQuant BRAIN platform (FASTEXPR language). Return ONLY the expressions, one per line, with no comments, explanations, or markdown formatting like backticks.\n\n", count)

	b.WriteString("Available Data Fields (sample):\n")
	fields := req.DataFields
	if len(fields) > maxPromptFields {
		fields = fields[:maxPromptFields]
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", f.ID, f.Description)
	}

	b.WriteString("\nAvailable Operators by Category (sample):\n")
	writeOperatorsByCategory(&b, req.Operators, maxOperatorsPerGroup)

	b.WriteString("\nRequirements:\n")
	b.WriteString("1. Create potentially profitable alpha factors.\n")
	b.WriteString("2. Use the provided operators and data fields, respecting operator types.\n")
	b.WriteString("3. Combine multiple operators (ts_, rank, zscore, arithmetic, logical, group, etc.).\n")
	b.WriteString("4. Ensure expressions are syntactically valid for FASTEXPR.\n")
	if req.StrategyType != "" {
		fmt.Fprintf(&b, "5. Focus on %s strategies.\n", req.StrategyType)
	}
	if len(req.FocusFields) > 0 {
		fmt.Fprintf(&b, "Please focus on using these data fields: %s\n", strings.Join(req.FocusFields, ", "))
	}
	if req.Complexity != "" {
		fmt.Fprintf(&b, "The complexity level should be %s.\n", req.Complexity)
	}

	b.WriteString("\nTips:\n")
	b.WriteString("- Common fields: open, high, low, close, volume, returns, vwap, cap.\n")
	b.WriteString("- Use rank or zscore for normalization.\n")
	b.WriteString("- Use time series operators like ts_mean, ts_std_dev, ts_rank, ts_delta with lookback windows (e.g. 5, 10, 20, 60).\n")
	b.WriteString("- Use ts_corr or ts_covariance for relationship-based factors.\n")

	fmt.Fprintf(&b, "\nGenerate %d distinct FASTEXPR expressions now:\n", count)
	return b.String()
}

func buildPolishPrompt(expression, requirements string, operators []brain.Operator) string {
	var b strings.Builder
	b.WriteString("You are an expert quantitative analyst specializing in improving WorldQuant BRAIN alpha expressions (FASTEXPR language).\n\n")
	if len(operators) > 0 {
		b.WriteString("Available Operators by Category (sample):\n")
		writeOperatorsByCategory(&b, operators, maxPolishOperatorsPer)
		b.WriteString("\n")
	}
	b.WriteString("Please carefully polish the following alpha expression to potentially improve its performance (Sharpe ratio, fitness, IR) while maintaining its core strategic idea.\n\n")
	fmt.Fprintf(&b, "Original Expression:\n%s\n\n", expression)
	if requirements != "" {
		fmt.Fprintf(&b, "Consider these specific requirements:\n%s\n\n", requirements)
	}
	b.WriteString("Make thoughtful changes, such as:\n")
	b.WriteString("1. Adjusting parameters (lookback periods, thresholds)\n")
	b.WriteString("2. Adding normalization (rank, zscore) to improve stability\n")
	b.WriteString("3. Applying smoothing (ts_mean) to reduce noise\n")
	b.WriteString("4. Handling outliers (winsorize)\n")
	b.WriteString("5. Combining with complementary factors (volume, volatility)\n\n")
	b.WriteString("Return ONLY the single, complete, polished FASTEXPR expression. Do not include explanations, comments, backticks, markdown formatting, or any other text.\n")
	return b.String()
}

func buildAnalyzePrompt(expression string, metrics map[string]float64) string {
	var b strings.Builder
	b.WriteString("You are an expert quantitative analyst. Analyze the following WorldQuant BRAIN alpha expression (FASTEXPR language).\n\n")
	fmt.Fprintf(&b, "Expression:\n%s\n", expression)
	if len(metrics) > 0 {
		b.WriteString("\nObserved in-sample metrics:\n")
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %.4f\n", name, metrics[name])
		}
	}
	b.WriteString("\nDescribe: the inefficiency it tries to capture, its key components, potential strengths, potential risks or overfitting concerns, and one concrete improvement suggestion.\n")
	return b.String()
}

func writeOperatorsByCategory(b *strings.Builder, operators []brain.Operator, perCategory int) {
	byCategory := map[string][]brain.Operator{}
	var order []string
	for _, op := range operators {
		category := op.Category
		if category == "" {
			category = "Uncategorized"
		}
		if _, seen := byCategory[category]; !seen {
			order = append(order, category)
		}
		byCategory[category] = append(byCategory[category], op)
	}
	if len(order) > maxPromptCategories {
		order = order[:maxPromptCategories]
	}
	for _, category := range order {
		ops := byCategory[category]
		if len(ops) > perCategory {
			ops = ops[:perCategory]
		}
		fmt.Fprintf(b, "\n%s:\n", category)
		for _, op := range ops {
			fmt.Fprintf(b, "- %s: %s\n", op.Name, op.Description)
		}
	}
}
