package graph

import (
	"context"
	"fmt"

	"github.com/cogniflow/agentrt/pkg/llm"
	"github.com/cogniflow/agentrt/pkg/memory"
	"github.com/cogniflow/agentrt/pkg/social"
)

// ImageDescriber is the describe_image node's external collaborator
// (spec.md §4.3.2: "obtains a text description of the image"), injected
// so the graph itself never performs I/O directly.
type ImageDescriber interface {
	Describe(ctx context.Context, mediaURL string) (string, error)
}

// FeedPublisherState is the state threaded through the feed_publisher
// graph (spec.md §4.3.2).
type FeedPublisherState struct {
	Brand        string
	Platform     string
	MediaURL     string
	TargetLanguage string

	DuplicateDetected bool
	SimilarCaption    string

	ImageDescription string
	Caption          string
	DetectedLanguage string

	LanguageScore    float64
	BrandScore       float64
	LengthScore      float64
	EngagementScore  float64
	Quality          float64

	Published             bool
	PlatformPostID        string
	RequiresHumanApproval bool
}

// FeedPublisherConfig names the fixed vocab the quality_check node scores
// against (spec.md §4.3.2 leaves the keyword/CTA lists as configuration,
// not algorithm).
type FeedPublisherConfig struct {
	LanguageKeywords []string
	CTAWords         []string
}

// BuildFeedPublisher wires check_history → describe_image →
// generate_caption → quality_check → [router: publish → save_memory |
// save_memory | save_only] over mem/describer/llmClient/poster.
func BuildFeedPublisher(mem *memory.Memory, describer ImageDescriber, llmClient *llm.Client, poster *social.Poster, cfg FeedPublisherConfig) (*Graph[FeedPublisherState], error) {
	g := New[FeedPublisherState]()

	nodes := map[string]Node[FeedPublisherState]{
		"check_history":    checkFeedHistory(mem),
		"describe_image":   describeImage(describer),
		"generate_caption": generateCaption(llmClient),
		"quality_check":    qualityCheck(cfg),
		"publish":          publishPost(poster),
		"save_only":        saveOnly(mem),
		"save_memory":      saveFeedMemory(mem),
	}
	for id, n := range nodes {
		if err := g.AddNode(id, n); err != nil {
			return nil, err
		}
	}

	if err := g.SetEntry("check_history"); err != nil {
		return nil, err
	}
	if err := g.Connect("check_history", "describe_image"); err != nil {
		return nil, err
	}
	if err := g.Connect("describe_image", "generate_caption"); err != nil {
		return nil, err
	}
	if err := g.Connect("generate_caption", "quality_check"); err != nil {
		return nil, err
	}
	if err := g.ConnectRouter("quality_check", feedPublisherRouter, []string{"publish", "save_only", "save_memory"}); err != nil {
		return nil, err
	}
	if err := g.Connect("publish", "save_memory"); err != nil {
		return nil, err
	}
	if err := g.MarkTerminal("save_only"); err != nil {
		return nil, err
	}
	if err := g.MarkTerminal("save_memory"); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("feed_publisher: %w", err)
	}
	return g, nil
}

func checkFeedHistory(mem *memory.Memory) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		results, err := mem.Search(ctx, "social_posts", s.Brand+" "+s.Platform, 10, []memory.Filter{
			{Field: "brand", Op: memory.OpEq, Value: s.Brand},
			{Field: "platform", Op: memory.OpEq, Value: s.Platform},
			{Field: "published", Op: memory.OpEq, Value: true},
		}, nil)
		if err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		next := s
		if len(results) > 0 && results[0].Score > 0.90 {
			next.DuplicateDetected = true
			if caption, ok := results[0].Payload["caption"].(string); ok {
				next.SimilarCaption = caption
			}
		}
		return NodeResult[FeedPublisherState]{State: next}, nil
	}
}

func describeImage(describer ImageDescriber) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		desc, err := describer.Describe(ctx, s.MediaURL)
		if err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		next := s
		next.ImageDescription = desc
		return NodeResult[FeedPublisherState]{State: next}, nil
	}
}

func generateCaption(llmClient *llm.Client) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		prompt := fmt.Sprintf(
			"Write a %s social media caption for brand %q describing: %s",
			s.TargetLanguage, s.Brand, s.ImageDescription,
		)
		caption, err := llmClient.Complete(ctx, prompt, nil)
		if err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		next := s
		next.Caption = caption
		next.DetectedLanguage = s.TargetLanguage
		return NodeResult[FeedPublisherState]{State: next}, nil
	}
}

func qualityCheck(cfg FeedPublisherConfig) Node[FeedPublisherState] {
	return func(_ context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		next := s
		next.LanguageScore = languageScore(s.Caption, cfg.LanguageKeywords)
		next.BrandScore = brandScore(s.Caption, s.Brand)
		next.LengthScore = lengthScore(s.Caption)
		next.EngagementScore = engagementScore(s.Caption, cfg.CTAWords)
		next.Quality = feedQuality(next.LanguageScore, next.BrandScore, next.LengthScore, next.EngagementScore)
		if !next.DuplicateDetected && next.Quality >= 0.70 && next.Quality < 0.85 {
			next.RequiresHumanApproval = true
		}

		var warnings []string
		if next.Quality < 0.70 {
			warnings = append(warnings, fmt.Sprintf("caption quality %.2f below floor 0.70", next.Quality))
		}
		return NodeResult[FeedPublisherState]{State: next, Warnings: warnings}, nil
	}
}

// feedPublisherRouter implements spec.md §4.3.2's router: duplicate or
// below-floor quality skips publication entirely (save_only); quality at
// or above the publish threshold publishes then saves; everything in
// between saves directly and is flagged for human approval instead of
// being auto-published.
func feedPublisherRouter(s FeedPublisherState) string {
	if s.DuplicateDetected || s.Quality < 0.70 {
		return "save_only"
	}
	if s.Quality >= 0.85 {
		return "publish"
	}
	return "save_memory"
}

func publishPost(poster *social.Poster) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		result, err := poster.Publish(ctx, s.Platform, social.Post{
			Brand:    s.Brand,
			Content:  s.Caption,
			MediaURL: s.MediaURL,
		})
		if err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		next := s
		next.Published = true
		next.PlatformPostID = result.PlatformPostID
		return NodeResult[FeedPublisherState]{State: next}, nil
	}
}

// skipReason names why quality_check's router sent a post to save_only
// instead of publish.
func skipReason(s FeedPublisherState) string {
	if s.DuplicateDetected {
		return "duplicate"
	}
	return "quality_below_floor"
}

// skipPayload builds the social_posts record saveOnly writes — published
// false, the caption kept alongside why it was skipped so the decision
// is queryable history rather than having vanished silently.
func skipPayload(s FeedPublisherState) map[string]any {
	return map[string]any{
		"brand":           s.Brand,
		"platform":        s.Platform,
		"published":       false,
		"caption":         s.Caption,
		"skip_reason":     skipReason(s),
		"similar_caption": s.SimilarCaption,
	}
}

// saveOnly records the skip decision (duplicate or below-quality-floor)
// without publishing — spec.md §8 S4 requires the save to happen on the
// duplicate path too, same as the publish path.
func saveOnly(mem *memory.Memory) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		if _, err := mem.Save(ctx, "social_posts", skipPayload(s), []string{"caption"}); err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		return NodeResult[FeedPublisherState]{State: s}, nil
	}
}

func saveFeedMemory(mem *memory.Memory) Node[FeedPublisherState] {
	return func(ctx context.Context, s FeedPublisherState) (NodeResult[FeedPublisherState], error) {
		_, err := mem.Save(ctx, "social_posts", map[string]any{
			"brand":     s.Brand,
			"platform":  s.Platform,
			"published": s.Published,
			"caption":   s.Caption,
		}, []string{"caption"})
		if err != nil {
			return NodeResult[FeedPublisherState]{}, err
		}
		return NodeResult[FeedPublisherState]{State: s}, nil
	}
}
