package errors

import "fmt"

// Explanation is the user-visible translation of a terminal failure or empty
// outcome. A bare status code is never acceptable output from the pipeline, so
// every code maps to text naming what was attempted and what to try next.
type Explanation struct {
	Code      ErrorCode `json:"code"`
	Attempted string    `json:"attempted"`
	Advice    string    `json:"advice"`
}

func (e Explanation) String() string {
	return fmt.Sprintf("%s %s", e.Attempted, e.Advice)
}

// Explain maps err to a user-facing explanation.
func Explain(err error) Explanation {
	se := Normalize(err)

	switch se.Code {
	case ErrCodeValidation:
		return Explanation{
			Code:      se.Code,
			Attempted: "I couldn't understand that request.",
			Advice:    "Try telling me what you're in the mood for, like \"recommend Italian restaurants in Paris\".",
		}
	case ErrCodeUpstreamTimeout:
		return Explanation{
			Code:      se.Code,
			Attempted: "I asked the recommendation service, but it took too long to answer.",
			Advice:    "Please try again in a moment.",
		}
	case ErrCodeUpstreamError:
		return Explanation{
			Code:      se.Code,
			Attempted: "I asked the recommendation service, but it couldn't complete the request.",
			Advice:    "Please try again, or rephrase with a more specific category or city.",
		}
	case ErrCodeParseError:
		return Explanation{
			Code:      se.Code,
			Attempted: "I got an answer back, but couldn't read anything useful out of it.",
			Advice:    "Try narrowing the request, for example to one category.",
		}
	case ErrCodeEmptyResult:
		return Explanation{
			Code:      se.Code,
			Attempted: "I searched, including a fallback lookup, and found nothing matching.",
			Advice:    "Try a broader query or a different location.",
		}
	case ErrCodePipelineTimeout:
		return Explanation{
			Code:      se.Code,
			Attempted: "Your request ran out of time before I could finish.",
			Advice:    "Please try again; shorter, more specific requests finish faster.",
		}
	default:
		return Explanation{
			Code:      se.Code,
			Attempted: "Something went wrong while processing your request.",
			Advice:    "Please try again.",
		}
	}
}
